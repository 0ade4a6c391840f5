// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package filter builds the /sync filter definitions the sync engine
// uploads to the homeserver.
//
// A Filter is an immutable value. The With* methods return modified
// copies, so a base filter can be shared across engines. Definition
// renders the JSON body; Hash and StoreKey identify a definition so a
// server-assigned filter ID can be cached and reused across restarts
// until the definition changes.
//
// Filter files are authored as JSONC (JSON with comments and trailing
// commas) and loaded with LoadFile. Knobs set with the With* methods
// are applied on top of the file's contents.
package filter

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"
)

// DefaultTimelineLimit is the number of timeline events per room the
// default filter asks for.
const DefaultTimelineLimit = 20

// Filter is a named /sync filter definition.
type Filter struct {
	name            string
	base            map[string]any
	timelineLimit   int
	includeLeave    bool
	lazyLoadMembers bool
}

// Default returns the filter used when no filter file is configured.
func Default() Filter {
	return Filter{name: "default", timelineLimit: DefaultTimelineLimit}
}

// Guest returns the inline filter sent by guest sessions, which cannot
// upload filters.
func Guest() Filter {
	return Filter{name: "guest", timelineLimit: DefaultTimelineLimit}
}

// Parse builds a named filter from JSONC data.
func Parse(name string, data []byte) (Filter, error) {
	var base map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &base); err != nil {
		return Filter{}, fmt.Errorf("filter: parsing %s: %w", name, err)
	}
	filter := Filter{name: name, base: base}
	if limit, ok := lookupNumber(base, "room", "timeline", "limit"); ok {
		filter.timelineLimit = int(limit)
	}
	if include, ok := lookupBool(base, "room", "include_leave"); ok {
		filter.includeLeave = include
	}
	if lazy, ok := lookupBool(base, "room", "state", "lazy_load_members"); ok {
		filter.lazyLoadMembers = lazy
	}
	return filter, nil
}

// LoadFile reads a JSONC filter file. The filter is named after the path.
func LoadFile(path string) (Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Filter{}, fmt.Errorf("filter: reading %s: %w", path, err)
	}
	return Parse(path, data)
}

// Name returns the filter's name.
func (f Filter) Name() string { return f.name }

// TimelineLimit returns the per-room timeline event limit, or 0 when
// the server default applies.
func (f Filter) TimelineLimit() int { return f.timelineLimit }

// IncludeLeave reports whether left rooms are included.
func (f Filter) IncludeLeave() bool { return f.includeLeave }

// LazyLoadMembers reports whether membership events are lazy-loaded.
func (f Filter) LazyLoadMembers() bool { return f.lazyLoadMembers }

// WithName returns a copy with a different name.
func (f Filter) WithName(name string) Filter {
	f.name = name
	return f
}

// WithTimelineLimit returns a copy requesting limit timeline events per room.
func (f Filter) WithTimelineLimit(limit int) Filter {
	f.timelineLimit = limit
	return f
}

// WithIncludeLeave returns a copy that does or does not include left rooms.
func (f Filter) WithIncludeLeave(include bool) Filter {
	f.includeLeave = include
	return f
}

// WithLazyLoadMembers returns a copy with lazy member loading toggled.
func (f Filter) WithLazyLoadMembers(lazy bool) Filter {
	f.lazyLoadMembers = lazy
	return f
}

// Definition renders the filter as a JSON filter body. Object keys are
// emitted in sorted order, so equal filters render identically.
func (f Filter) Definition() json.RawMessage {
	definition := cloneMap(f.base)
	roomSection := childMap(definition, "room")
	if f.timelineLimit > 0 {
		childMap(roomSection, "timeline")["limit"] = f.timelineLimit
	}
	if f.includeLeave {
		roomSection["include_leave"] = true
	} else {
		delete(roomSection, "include_leave")
	}
	if f.lazyLoadMembers {
		childMap(roomSection, "state")["lazy_load_members"] = true
	}
	if len(roomSection) == 0 {
		delete(definition, "room")
	}

	data, err := json.Marshal(definition)
	if err != nil {
		// Definitions are built from decoded JSON and ints.
		panic("filter: marshalling definition: " + err.Error())
	}
	return data
}

// Hash returns a short hex digest of the definition.
func (f Filter) Hash() string {
	sum := blake3.Sum256(f.Definition())
	return hex.EncodeToString(sum[:8])
}

// StoreKey is the key under which the server-assigned filter ID is
// cached. A changed definition produces a different key, so the stale
// ID is never reused.
func (f Filter) StoreKey() string {
	return f.name + "#" + f.Hash()
}

func childMap(parent map[string]any, key string) map[string]any {
	if child, ok := parent[key].(map[string]any); ok {
		return child
	}
	child := make(map[string]any)
	parent[key] = child
	return child
}

func cloneMap(source map[string]any) map[string]any {
	clone := make(map[string]any, len(source))
	for key, value := range source {
		if nested, ok := value.(map[string]any); ok {
			value = cloneMap(nested)
		}
		clone[key] = value
	}
	return clone
}

func lookup(root map[string]any, path ...string) (any, bool) {
	var current any = root
	for _, key := range path {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = object[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func lookupNumber(root map[string]any, path ...string) (float64, bool) {
	value, ok := lookup(root, path...)
	if !ok {
		return 0, false
	}
	number, ok := value.(float64)
	return number, ok
}

func lookupBool(root map[string]any, path ...string) (bool, bool) {
	value, ok := lookup(root, path...)
	if !ok {
		return false, false
	}
	flag, ok := value.(bool)
	return flag, ok
}
