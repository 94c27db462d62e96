// Package dialogue implements the chat screen controller: it reads the input box when the submit
// control is clicked, shows the user's text as a dialogue entry, asks a Replier for an answer and
// shows the answer as a second entry.
//
// The package does not render anything itself. Every on-screen element is a handle supplied by a
// frontend (see the web and tui packages), and all calls into those handles are serialized by the
// Screen, so a frontend never sees two handle calls at the same time.
package dialogue
