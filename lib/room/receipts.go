// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"cmp"
	"slices"

	"github.com/bureau-foundation/chatsync/lib/ref"
	"github.com/bureau-foundation/chatsync/lib/timeline"
	"github.com/bureau-foundation/chatsync/messaging"
)

// ReceiptTypeRead is the public read receipt type.
const ReceiptTypeRead = "m.read"

// Receipt records that UserID has reached EventID.
type Receipt struct {
	UserID    ref.UserID
	Type      string
	EventID   ref.EventID
	Timestamp int64
	// Synthetic receipts are inferred locally rather than reported by
	// the server.
	Synthetic bool
}

type receiptKey struct {
	receiptType string
	userID      ref.UserID
}

// receiptStore keeps the latest receipt per (type, user). server holds
// only receipts the server reported; all also holds synthetic ones.
type receiptStore struct {
	server map[receiptKey]Receipt
	all    map[receiptKey]Receipt
}

func newReceiptStore() receiptStore {
	return receiptStore{
		server: make(map[receiptKey]Receipt),
		all:    make(map[receiptKey]Receipt),
	}
}

// CompareEvents orders two resident events across the timeline chain.
// The second result is false when either event is not resident or the
// two sit in timelines that are not linked.
func (r *Room) CompareEvents(left, right ref.EventID) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.compareEventsLocked(left, right)
}

func (r *Room) compareEventsLocked(left, right ref.EventID) (int, bool) {
	if left == right {
		_, ok := r.eventIndex[left]
		return 0, ok
	}
	leftPosition, ok := r.positionLocked(left)
	if !ok {
		return 0, false
	}
	rightPosition, ok := r.positionLocked(right)
	if !ok {
		return 0, false
	}
	return r.arena.Compare(leftPosition, rightPosition)
}

func (r *Room) positionLocked(eventID ref.EventID) (timeline.Position, bool) {
	id, ok := r.eventIndex[eventID]
	if !ok {
		return timeline.Position{}, false
	}
	tl := r.arena.Get(id)
	if tl == nil {
		return timeline.Position{}, false
	}
	index, ok := tl.IndexOf(eventID)
	if !ok {
		return timeline.Position{}, false
	}
	return timeline.Position{Timeline: id, Index: index}, true
}

// AddReceiptEvent records the receipts in an m.receipt ephemeral event.
func (r *Room) AddReceiptEvent(wire messaging.Event) {
	receipts := ParseReceipts(wire)
	r.mu.Lock()
	var out outbox
	var applied []Receipt
	for _, receipt := range receipts {
		if r.addReceiptLocked(receipt) {
			applied = append(applied, receipt)
		}
	}
	if len(applied) > 0 {
		out.add(Notification{Kind: KindReceipt, RoomID: r.id, Receipts: applied})
	}
	r.mu.Unlock()
	r.dispatch(out)
}

// AddLocalReceipt records a synthetic read receipt for the local user,
// used when the client sends one so the UI updates before the server
// echoes it.
func (r *Room) AddLocalReceipt(eventID ref.EventID, timestamp int64) {
	r.mu.Lock()
	var out outbox
	receipt := Receipt{UserID: r.userID, Type: ReceiptTypeRead, EventID: eventID, Timestamp: timestamp, Synthetic: true}
	if r.addReceiptLocked(receipt) {
		out.add(Notification{Kind: KindReceipt, RoomID: r.id, Receipts: []Receipt{receipt}})
	}
	r.mu.Unlock()
	r.dispatch(out)
}

// synthesizeReceiptLocked moves the sender's read receipt to a live
// event: a user has read everything up to what they just sent.
// Redactions leave it where it is.
func (r *Room) synthesizeReceiptLocked(wire messaging.Event, out *outbox) {
	if wire.Sender.IsZero() || wire.EventID.IsZero() || wire.Type == ref.EventTypeRedaction {
		return
	}
	receipt := Receipt{
		UserID:    wire.Sender,
		Type:      ReceiptTypeRead,
		EventID:   wire.EventID,
		Timestamp: wire.OriginServerTS,
		Synthetic: true,
	}
	if r.addReceiptLocked(receipt) {
		out.add(Notification{Kind: KindReceipt, RoomID: r.id, Receipts: []Receipt{receipt}})
	}
}

// addReceiptLocked stores receipt unless the current one for the same
// (type, user) is at or after it. When the order cannot be determined
// the current receipt is kept.
func (r *Room) addReceiptLocked(receipt Receipt) bool {
	key := receiptKey{receiptType: receipt.Type, userID: receipt.UserID}
	stored := false
	if !receipt.Synthetic && r.receiptIsNewerLocked(r.receipts.server, key, receipt.EventID) {
		r.receipts.server[key] = receipt
		stored = true
	}
	if r.receiptIsNewerLocked(r.receipts.all, key, receipt.EventID) {
		r.receipts.all[key] = receipt
		stored = true
	}
	return stored
}

func (r *Room) receiptIsNewerLocked(receipts map[receiptKey]Receipt, key receiptKey, eventID ref.EventID) bool {
	existing, ok := receipts[key]
	if !ok {
		return true
	}
	if existing.EventID == eventID {
		return false
	}
	// A receipt whose event is not resident cannot be ordered against
	// and is replaced.
	if _, resident := r.eventIndex[existing.EventID]; !resident {
		return true
	}
	ordering, known := r.compareEventsLocked(existing.EventID, eventID)
	return known && ordering < 0
}

// ReceiptsForEvent returns every receipt pointing at eventID, sorted
// by user.
func (r *Room) ReceiptsForEvent(eventID ref.EventID) []Receipt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var receipts []Receipt
	for _, receipt := range r.receipts.all {
		if receipt.EventID == eventID {
			receipts = append(receipts, receipt)
		}
	}
	slices.SortFunc(receipts, func(a, b Receipt) int {
		if c := cmp.Compare(a.UserID.String(), b.UserID.String()); c != 0 {
			return c
		}
		return cmp.Compare(a.Type, b.Type)
	})
	return receipts
}

// ReadUpTo returns the event userID's read receipt points at. With
// ignoreSynthetic only server-reported receipts count.
func (r *Room) ReadUpTo(userID ref.UserID, ignoreSynthetic bool) (ref.EventID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	receipts := r.receipts.all
	if ignoreSynthetic {
		receipts = r.receipts.server
	}
	receipt, ok := receipts[receiptKey{receiptType: ReceiptTypeRead, userID: userID}]
	return receipt.EventID, ok
}

// UsersReadUpTo returns the users whose read receipt is at eventID.
func (r *Room) UsersReadUpTo(eventID ref.EventID) []ref.UserID {
	var users []ref.UserID
	for _, receipt := range r.ReceiptsForEvent(eventID) {
		if receipt.Type == ReceiptTypeRead {
			users = append(users, receipt.UserID)
		}
	}
	return users
}

// HasUserReadEvent reports whether userID's read receipt is at or
// after eventID.
func (r *Room) HasUserReadEvent(userID ref.UserID, eventID ref.EventID) bool {
	readUpTo, ok := r.ReadUpTo(userID, false)
	if !ok {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ordering, known := r.compareEventsLocked(eventID, readUpTo)
	return known && ordering <= 0
}

// ParseReceipts decodes an m.receipt event. Its content maps event ID
// to receipt type to user ID to {"ts": ...}.
func ParseReceipts(wire messaging.Event) []Receipt {
	var receipts []Receipt
	for rawEventID, byType := range wire.Content {
		eventID, err := ref.ParseEventID(rawEventID)
		if err != nil {
			continue
		}
		types, ok := byType.(map[string]any)
		if !ok {
			continue
		}
		for receiptType, byUser := range types {
			users, ok := byUser.(map[string]any)
			if !ok {
				continue
			}
			for rawUserID, data := range users {
				userID, err := ref.ParseUserID(rawUserID)
				if err != nil {
					continue
				}
				receipt := Receipt{UserID: userID, Type: receiptType, EventID: eventID}
				if fields, ok := data.(map[string]any); ok {
					if timestamp, ok := fields["ts"].(float64); ok {
						receipt.Timestamp = int64(timestamp)
					}
				}
				receipts = append(receipts, receipt)
			}
		}
	}
	slices.SortFunc(receipts, func(a, b Receipt) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return receipts
}

// receiptList flattens the server receipts for snapshots.
func (r *Room) receiptListLocked() []Receipt {
	receipts := make([]Receipt, 0, len(r.receipts.server))
	for _, receipt := range r.receipts.server {
		receipts = append(receipts, receipt)
	}
	slices.SortFunc(receipts, func(a, b Receipt) int {
		return cmp.Compare(a.UserID.String()+a.Type, b.UserID.String()+b.Type)
	})
	return receipts
}
