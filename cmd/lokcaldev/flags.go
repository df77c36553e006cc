package main

import "time"

// GlobalFlags are persistent on the root command.
type GlobalFlags struct {
	ConfigPath string
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
	Token      string
	JSON       bool
}

type ServeFlags struct {
	Daemonize bool
	PidFile   string
	LogFile   string
	NoAuto    bool
}

type AuthFlags struct {
	Password string
}

type LogsFlags struct {
	Lines int
}

type HistoryFlags struct {
	Limit int
}
