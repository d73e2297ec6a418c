package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	appevents "github.com/rescp17/bdx/internal/app_events"
)

// MessageSource is an app the UI follows.
type MessageSource interface {
	UIMessages() <-chan tea.Msg
}

// Controller is an app the UI follows and can steer.
type Controller interface {
	MessageSource
	AppEvents() chan<- appevents.AppEvent
}

// appClosedMsg is returned once the app's message channel is closed.
type appClosedMsg struct{}

// listenForAppMessages is a command that waits for the next app message.
func listenForAppMessages(src MessageSource) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-src.UIMessages()
		if !ok {
			return appClosedMsg{}
		}
		return msg
	}
}

func isQuitKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		return true
	}
	return false
}
