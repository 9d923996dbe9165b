package main

import "time"

// Flag structs to decouple cobra from logic for testing.

type ServeFlags struct {
	ConfigPath  string
	SkipRecover bool // skip the startup recovery run
}

type RecoverFlags struct {
	ConfigPath string
	// Remote supervisor connection; when set the recovery request goes
	// over the API instead of running locally.
	APIUrl     string
	APITimeout time.Duration
}

type StatusFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

type AuditFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Limit      int
}

type ValidateFlags struct {
	ConfigPath string
	CheckNames bool // also ask the process manager about each process
}
