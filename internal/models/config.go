// Package models contains the data structures used throughout pybackup.
package models

import "strings"

// KeyValue is one key of a configuration section.
type KeyValue struct {
	Key   string
	Value string
}

// Section is one named group of keys, in file order.
type Section struct {
	Name string
	Keys []KeyValue
}

// Get returns the value stored under key and whether it was present.
// Keys are compared case-insensitively.
func (s Section) Get(key string) (string, bool) {
	for _, kv := range s.Keys {
		if strings.EqualFold(kv.Key, key) {
			return kv.Value, true
		}
	}
	return "", false
}

// PairingMode selects how archive sections are matched with directory sections.
type PairingMode string

const (
	// PairPositional pairs the Nth archive section with the Nth directories section.
	PairPositional PairingMode = "positional"
	// PairSuffix pairs "archiveX" with "directoriesX".
	PairSuffix PairingMode = "suffix"
)

// ArchiveTarget is one output archive and the directories it contains.
type ArchiveTarget struct {
	Name        string
	SourceDirs  []string
	Compression CompressionSettings
}

// BackupPlan holds every archive target of a run, in configuration order.
type BackupPlan struct {
	Targets     []ArchiveTarget
	Compression CompressionSettings
	Pairing     PairingMode
	Warnings    []string // recoverable problems found while resolving
}
