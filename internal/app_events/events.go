package appevents

import (
	"github.com/rescp17/bdx/pkg/discovery"
	"github.com/rescp17/bdx/pkg/transfer"
)

// AppEvent is a marker interface for events sent from the TUI to the App's logic controller.
// It uses an unexported method so that only types embedding Event satisfy it.
type AppEvent interface {
	isAppEvent()
}

// Event is a struct that can be embedded in other event types to satisfy the AppEvent interface.
type Event struct{}

func (Event) isAppEvent() {}

// AppUIMessage is a marker interface for messages sent from the App's logic controller to the TUI.
type AppUIMessage interface {
	isUIMessage()
}

// UIMessage is a base struct that can be embedded in other types to implement the AppUIMessage interface.
type UIMessage struct{}

func (UIMessage) isUIMessage() {}

// --- App Events (from TUI to App) ---

// CancelTransferEvent asks the app to abort the running transfer.
type CancelTransferEvent struct {
	Event
}

// --- UI Messages (from App to TUI) ---

type StatusUpdateMsg struct {
	UIMessage
	Message string
}

type FoundServicesMsg struct {
	UIMessage
	Services []discovery.ServiceInfo
}

// ProgressMsg is sent after every block of the transfer the app is running.
type ProgressMsg struct {
	UIMessage
	Progress transfer.Progress
}

// RetryMsg announces that a failed attempt will be retried.
type RetryMsg struct {
	UIMessage
	Attempt int
	Err     error
}

// TransfersMsg is a snapshot of the transfers a serving app has seen.
type TransfersMsg struct {
	UIMessage
	Transfers []*transfer.TransferStatus
	Overall   transfer.OverallProgress
}

// TransferDoneMsg ends a send or fetch. Err is nil on success.
type TransferDoneMsg struct {
	UIMessage
	Result *transfer.Result
	Err    error
}

type ErrorMsg struct {
	UIMessage
	Err error
}

var (
	_ AppEvent     = CancelTransferEvent{}
	_ AppUIMessage = StatusUpdateMsg{}
	_ AppUIMessage = FoundServicesMsg{}
	_ AppUIMessage = ProgressMsg{}
	_ AppUIMessage = RetryMsg{}
	_ AppUIMessage = TransfersMsg{}
	_ AppUIMessage = TransferDoneMsg{}
	_ AppUIMessage = ErrorMsg{}
)
