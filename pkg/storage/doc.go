// Package storage provides persistent storage functionality for the war bot.
// It uses BadgerDB as the embedded database; WarStore keeps the scheduled wars
// of every server as a single JSON document that is always replaced whole.
package storage
