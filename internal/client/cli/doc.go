// Package cli implements the exmate terminal client.
//
// The App wires the identity core together: the local store, the REST
// client, the session service, the callback router and listener, the
// onboarding wizard, the realtime channel and the unread badge. The
// terminal stands in for a browser: an in-process ui.History tracks the
// current location, and every page load (a pasted callback URL, a browser
// redirect caught by the loopback listener, or a navigation made by the
// core itself) runs through App.onLoad.
//
// See App, runREPL, and execIface for details.
package cli
