// Package membership answers which parliamentary groups existed in a
// governing body at a point in time, and which group a political party sits
// in.
package membership

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sagebase/sagebase/internal/model"
	"github.com/sagebase/sagebase/internal/store"
)

var (
	// ErrNoGroup is returned when no group is linked to the party.
	ErrNoGroup = eris.New("no parliamentary group for party")
	// ErrAmbiguousGroup is returned when more than one group is linked to the party.
	ErrAmbiguousGroup = eris.New("multiple parliamentary groups for party")
)

// Query narrows GetByGoverningBody.
type Query struct {
	// AsOf selects groups valid on that day. The is_active flag is only
	// consulted for groups without any recorded period.
	AsOf *time.Time
	// IncludeInactive lists groups whose is_active flag is cleared. Without
	// AsOf the zero Query only returns active groups. Ignored when AsOf is set.
	IncludeInactive bool
	// Chamber restricts results to one house. Nil means all chambers.
	Chamber *string
}

// GroupLister is the slice of the store the resolver reads from.
type GroupLister interface {
	ListParliamentaryGroups(ctx context.Context, q store.GroupQuery) ([]model.ParliamentaryGroup, error)
}

// Resolver looks up parliamentary groups under the temporal validity policy.
type Resolver struct {
	groups GroupLister
}

// NewResolver returns a Resolver reading from groups.
func NewResolver(groups GroupLister) *Resolver {
	return &Resolver{groups: groups}
}

// GetByGoverningBody returns the groups of a governing body ordered by name.
// An unknown governing body yields an empty slice.
func (r *Resolver) GetByGoverningBody(ctx context.Context, governingBodyID int64, q Query) ([]model.ParliamentaryGroup, error) {
	sq := store.GroupQuery{
		GoverningBodyID: governingBodyID,
		ActiveOnly:      !q.IncludeInactive,
		Chamber:         q.Chamber,
	}
	if q.AsOf != nil {
		day := model.TruncateDate(*q.AsOf)
		sq.AsOf = &day
		sq.ActiveOnly = false
	}

	groups, err := r.groups.ListParliamentaryGroups(ctx, sq)
	if err != nil {
		return nil, eris.Wrapf(err, "membership: list groups of governing body %d", governingBodyID)
	}
	if groups == nil {
		groups = []model.ParliamentaryGroup{}
	}
	return groups, nil
}

// GroupsDuring returns the groups valid at any point in [from, to]. A nil to
// leaves the range open.
func (r *Resolver) GroupsDuring(ctx context.Context, governingBodyID int64, from time.Time, to *time.Time) ([]model.ParliamentaryGroup, error) {
	all, err := r.GetByGoverningBody(ctx, governingBodyID, Query{IncludeInactive: true})
	if err != nil {
		return nil, err
	}
	out := make([]model.ParliamentaryGroup, 0, len(all))
	for _, g := range all {
		if g.OverlapsWith(from, to) {
			out = append(out, g)
		}
	}
	return out, nil
}

// GroupsByParty maps political party ids to the groups linked to them. With a
// nil asOf only groups flagged active are considered. Groups without a party
// are left out.
func (r *Resolver) GroupsByParty(ctx context.Context, governingBodyID int64, asOf *time.Time) (map[int64][]model.ParliamentaryGroup, error) {
	groups, err := r.GetByGoverningBody(ctx, governingBodyID, Query{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	byParty := make(map[int64][]model.ParliamentaryGroup)
	for _, g := range groups {
		if g.PoliticalPartyID == nil {
			continue
		}
		byParty[*g.PoliticalPartyID] = append(byParty[*g.PoliticalPartyID], g)
	}
	return byParty, nil
}

// ResolveForParty returns the single group a party sits in. It fails with
// ErrNoGroup or ErrAmbiguousGroup when there is not exactly one candidate.
func (r *Resolver) ResolveForParty(ctx context.Context, governingBodyID, partyID int64, asOf *time.Time) (*model.ParliamentaryGroup, error) {
	byParty, err := r.GroupsByParty(ctx, governingBodyID, asOf)
	if err != nil {
		return nil, err
	}
	candidates := byParty[partyID]
	switch len(candidates) {
	case 0:
		return nil, eris.Wrapf(ErrNoGroup, "membership: party %d in governing body %d", partyID, governingBodyID)
	case 1:
		g := candidates[0]
		return &g, nil
	default:
		names := make([]string, len(candidates))
		for i, g := range candidates {
			names[i] = g.String()
		}
		sort.Strings(names)
		zap.L().Debug("party maps to several groups",
			zap.Int64("governing_body_id", governingBodyID),
			zap.Int64("political_party_id", partyID),
			zap.Strings("groups", names),
		)
		return nil, eris.Wrapf(ErrAmbiguousGroup, "membership: party %d in governing body %d: %s",
			partyID, governingBodyID, strings.Join(names, ", "))
	}
}
