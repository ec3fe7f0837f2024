package indexer

import "errors"

var (
	// ErrConnect means the websocket connection could not be opened.
	ErrConnect = errors.New("indexer connect failed")
	// ErrHandshake means connection_init or subscribe did not complete.
	ErrHandshake = errors.New("indexer handshake failed")
	// ErrProtocol means the indexer sent a message the session cannot interpret.
	ErrProtocol = errors.New("indexer protocol violation")
	// ErrInvalidState means a contract action carried a state that is not hex.
	ErrInvalidState = errors.New("contract state is not valid hex")
	// ErrBackpressure means the consumer channel was full when an event was due.
	ErrBackpressure = errors.New("consumer channel full")
)
