// Package realtime turns row changes from the change feed into websocket
// events for the sessions of the affected users.
package realtime

import (
	"context"

	"copytrade/internal/logger"
	"copytrade/internal/money"
	"copytrade/internal/notify"
	"copytrade/internal/referral"
	"copytrade/internal/websocket"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Pusher interface {
	Broadcast(userID int64, event websocket.Event)
}

// ReferralJoined tells an inviter that their level-1 downline grew by one.
type ReferralJoined struct {
	UserID      int64  `json:"user_id"`
	PhoneNumber string `json:"phone_number"`
	Level       int    `json:"level"`
}

type StatusChange struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

type userRow struct {
	ID               int64           `json:"id"`
	PhoneNumber      string          `json:"phone_number"`
	InvitedBy        *int64          `json:"invited_by"`
	Balance          decimal.Decimal `json:"balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
}

type ownedRow struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"user_id"`
	Status string `json:"status"`
}

type Relay struct {
	feed   *notify.Feed
	hub    Pusher
	buffer int
}

func NewRelay(feed *notify.Feed, hub Pusher, buffer int) *Relay {
	if buffer <= 0 {
		buffer = 256
	}
	return &Relay{feed: feed, hub: hub, buffer: buffer}
}

// Run relays until ctx is done or the feed closes.
func (r *Relay) Run(ctx context.Context) error {
	users := r.feed.Subscribe(notify.Filter{Table: "users", Ops: []notify.Op{notify.OpInsert, notify.OpUpdate}}, r.buffer)
	defer users.Close()
	orders := r.feed.Subscribe(notify.Filter{Table: "copytrade_details"}, r.buffer)
	defer orders.Close()
	recharges := r.feed.Subscribe(notify.Filter{Table: "recharges", Ops: []notify.Op{notify.OpUpdate}}, r.buffer)
	defer recharges.Close()
	withdraws := r.feed.Subscribe(notify.Filter{Table: "withdraws", Ops: []notify.Op{notify.OpUpdate}}, r.buffer)
	defer withdraws.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-users.C:
			if !ok {
				return nil
			}
			r.handleUser(c)
		case c, ok := <-orders.C:
			if !ok {
				return nil
			}
			r.handleOwned(c, websocket.EventOrder)
		case c, ok := <-recharges.C:
			if !ok {
				return nil
			}
			r.handleOwned(c, websocket.EventRecharge)
		case c, ok := <-withdraws.C:
			if !ok {
				return nil
			}
			r.handleOwned(c, websocket.EventWithdraw)
		}
	}
}

func (r *Relay) handleUser(c notify.Change) {
	var row userRow
	if err := c.Decode(&row); err != nil {
		logDecodeError(c, err)
		return
	}
	switch c.Op {
	case notify.OpInsert:
		if row.InvitedBy == nil {
			return
		}
		r.hub.Broadcast(*row.InvitedBy, websocket.Event{
			Type: websocket.EventReferralJoined,
			Data: ReferralJoined{
				UserID:      row.ID,
				PhoneNumber: referral.MaskPhone(row.PhoneNumber),
				Level:       1,
			},
		})
	case notify.OpUpdate:
		var old userRow
		if err := c.DecodeOld(&old); err == nil &&
			old.Balance.Equal(row.Balance) && old.AvailableBalance.Equal(row.AvailableBalance) {
			return
		}
		r.hub.Broadcast(row.ID, websocket.Event{
			Type: websocket.EventBalance,
			Data: websocket.BalanceUpdate{
				Balance:          money.Format(row.Balance),
				AvailableBalance: money.Format(row.AvailableBalance),
			},
		})
	}
}

func (r *Relay) handleOwned(c notify.Change, eventType string) {
	var row ownedRow
	if err := c.Decode(&row); err != nil {
		logDecodeError(c, err)
		return
	}
	if c.Op == notify.OpUpdate {
		var old ownedRow
		if err := c.DecodeOld(&old); err == nil && old.Status == row.Status {
			return
		}
	}
	if row.UserID <= 0 {
		return
	}
	r.hub.Broadcast(row.UserID, websocket.Event{
		Type: eventType,
		Data: StatusChange{ID: row.ID, Status: row.Status},
	})
}

func logDecodeError(c notify.Change, err error) {
	logger.Log.WithFields(logrus.Fields{
		"table": c.Table,
		"op":    c.Op,
		"error": err.Error(),
	}).Warn("relay could not decode row")
}

