package chat

// Project maps a session state to the presence signal.
func Project(s State) bool {
	return s == StateConnected
}

// Presence exposes the connected flag of a controller.
type Presence struct {
	ctrl *Controller
}

// NewPresence builds a Presence over ctrl.
func NewPresence(ctrl *Controller) Presence {
	return Presence{ctrl: ctrl}
}

// Connected is true iff the controller is Connected.
func (p Presence) Connected() bool {
	return Project(p.ctrl.State())
}

// Status is the label shown by the view.
func (p Presence) Status() string {
	if p.Connected() {
		return "connected"
	}
	return "reconnecting"
}
