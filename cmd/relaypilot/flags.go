package main

import "time"

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
}

// ClientFlags holds daemon connection flags shared by the client commands.
type ClientFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// StatusFlags holds flags for the status command.
type StatusFlags struct {
	ClientFlags
	Worker string
}

// ResetFlags holds flags for the reset command.
type ResetFlags struct {
	ClientFlags
	Worker string
}

// InitFlags holds flags for the init command.
type InitFlags struct {
	Output  string
	Type    string
	Force   bool
	Command string
	Port    int
}
