package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/duskvoice/narrator/internal/db"
)

func TestSortLotsByPriority_PrefersConfiguredOrder(t *testing.T) {
	svc := NewService(nil, nil, []string{db.SourceEvent, db.SourceMonthly, db.SourceFree}, 0)

	monthly := db.CreditLot{LotID: uuid.New(), Source: db.SourceMonthly, AmountRemaining: 10}
	event := db.CreditLot{LotID: uuid.New(), Source: db.SourceEvent, AmountRemaining: 5}
	free := db.CreditLot{LotID: uuid.New(), Source: db.SourceFree, AmountRemaining: 1}

	lots := []db.CreditLot{monthly, free, event}
	svc.sortLotsByPriority(lots)

	assert.Equal(t, []string{db.SourceEvent, db.SourceMonthly, db.SourceFree}, sourcesOf(lots))
}

func TestSortLotsByPriority_TiesBreakOnExpiryThenID(t *testing.T) {
	svc := NewService(nil, nil, []string{db.SourceEvent}, 0)

	soon := time.Now().Add(time.Hour)
	later := time.Now().Add(24 * time.Hour)

	a := db.CreditLot{LotID: uuid.New(), Source: db.SourceEvent, ExpiresAt: &later}
	b := db.CreditLot{LotID: uuid.New(), Source: db.SourceEvent, ExpiresAt: &soon}
	c := db.CreditLot{LotID: uuid.New(), Source: db.SourceEvent, ExpiresAt: nil}

	lots := []db.CreditLot{a, c, b}
	svc.sortLotsByPriority(lots)

	// soon-expiring first, then later-expiring, never-expiring last.
	assert.Equal(t, b.LotID, lots[0].LotID)
	assert.Equal(t, a.LotID, lots[1].LotID)
	assert.Equal(t, c.LotID, lots[2].LotID)
}

func TestSortLotsByPriority_UnknownSourceSortsLast(t *testing.T) {
	svc := NewService(nil, nil, []string{db.SourceEvent, db.SourceMonthly}, 0)

	known := db.CreditLot{LotID: uuid.New(), Source: db.SourceMonthly}
	unknown := db.CreditLot{LotID: uuid.New(), Source: "mystery"}

	lots := []db.CreditLot{unknown, known}
	svc.sortLotsByPriority(lots)

	assert.Equal(t, known.LotID, lots[0].LotID)
	assert.Equal(t, unknown.LotID, lots[1].LotID)
}

func sourcesOf(lots []db.CreditLot) []string {
	out := make([]string, len(lots))
	for i, l := range lots {
		out[i] = l.Source
	}
	return out
}
