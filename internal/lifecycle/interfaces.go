package lifecycle

import (
	"context"
	"encoding/json"

	"jobredirect/internal/job"
	"jobredirect/internal/poller"
)

// Presenter renders lifecycle events. Calls arrive one at a time, in the order the
// controller decided them. Implementations must not call back into the Controller.
type Presenter interface {
	OnStatusChanged(status job.Status, message string, queuePosition *int)
	OnDismissed()
}

// JobPresenter is a Presenter that also wants the id of the job an event is about.
// When the configured presenter implements it, the controller calls these methods
// instead of the Presenter ones.
type JobPresenter interface {
	Presenter
	OnJobStatusChanged(jobID string, status job.Status, message string, queuePosition *int)
	OnJobDismissed(jobID string)
}

// Refresher reloads the host's displayed results.
type Refresher interface {
	RefreshResults(ctx context.Context) error
}

// Host is the application whose submit action is redirected.
type Host interface {
	Refresher

	// SerializeWork returns the current unit of work as an opaque JSON document.
	SerializeWork(ctx context.Context) (json.RawMessage, error)

	// Alert shows a blocking, user-visible message.
	Alert(message string)
}

// JobService is the remote side the controller submits to.
type JobService interface {
	Submit(ctx context.Context, payload json.RawMessage, userID string) (*job.Submission, error)
	Cancel(ctx context.Context, jobID string) error
}

// StatusPoller drives periodic status fetches for one job.
type StatusPoller interface {
	Start(jobID string, onUpdate poller.UpdateFunc, onError poller.ErrorFunc)
	Stop()
}
