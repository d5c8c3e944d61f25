// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package market

import (
	"context"
	"fmt"
	"time"

	"github.com/blinklabs-io/lendcalc/internal/common"
)

// View is every derived output for a set of market snapshots
type View struct {
	Markets   []*Summary      `json:"markets"`
	Positions []*UserPosition `json:"positions"`
	Listings  []*Listing      `json:"listings"`
	Errors    []ViewError     `json:"errors,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ViewError records an output that could not be computed. Clients render
// these as unavailable rather than substituting a value.
type ViewError struct {
	MarketAppId uint64 `json:"marketAppId"`
	Address     string `json:"address,omitempty"`
	Error       string `json:"error"`
}

// Evaluate computes the summary of each market and the position and listing
// of each account. A failure is recorded in the view and evaluation moves on
// to the next market or account; only context cancellation aborts.
func (s *Service) Evaluate(ctx context.Context, snaps []*Snapshot) (*View, error) {
	ret := &View{
		Markets:   make([]*Summary, 0, len(snaps)),
		Positions: []*UserPosition{},
		Listings:  []*Listing{},
		UpdatedAt: s.now().UTC(),
	}
	fail := func(snap *Snapshot, address string, err error) {
		s.logger.Warn(
			"evaluation failed",
			"market", snap.Config.AppId,
			"address", address,
			"error", err,
		)
		ret.Errors = append(ret.Errors, ViewError{
			MarketAppId: snap.Config.AppId,
			Address:     address,
			Error:       err.Error(),
		})
	}
	for _, snap := range snaps {
		if snap.Err != nil {
			fail(snap, "", snap.Err)
			continue
		}
		if snap.State == nil {
			fail(snap, "", fmt.Errorf("no market state: %w", common.ErrInconsistentSnapshot))
			continue
		}
		summary, err := s.Summarize(snap)
		if err != nil {
			fail(snap, "", err)
			continue
		}
		ret.Markets = append(ret.Markets, summary)
		for _, acctErr := range snap.AccountErrors {
			fail(snap, acctErr.Address, acctErr.Err)
		}
		for _, acct := range snap.Accounts {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			pos, err := s.Position(ctx, snap, acct)
			if err != nil {
				fail(snap, acct.Address, err)
				continue
			}
			ret.Positions = append(ret.Positions, pos)
			if acct.Loan == nil {
				continue
			}
			listing, err := s.Listing(ctx, snap, acct.Address, acct.Loan)
			if err != nil {
				fail(snap, acct.Address, err)
				continue
			}
			if listing.Kind != ListingKindNone {
				ret.Listings = append(ret.Listings, listing)
			}
		}
	}
	s.logger.Info(
		"evaluated snapshot",
		"markets", len(ret.Markets),
		"positions", len(ret.Positions),
		"listings", len(ret.Listings),
		"errors", len(ret.Errors),
	)
	return ret, nil
}
