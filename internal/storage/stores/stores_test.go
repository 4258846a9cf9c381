package stores

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pnf-signal-lab/internal/config"
	"pnf-signal-lab/internal/domain"
)

func TestOpen_Memory(t *testing.T) {
	ctx := context.Background()
	set, cleanup, err := Open(ctx, &config.Config{}, Options{UseMemory: true})
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, set.Candles.InsertBulk(ctx, []*domain.Candle{
		{InstrumentID: "A", Timestamp: domain.MinuteMs, Open: 1, High: 1, Low: 1, Close: 1},
	}))
	insts, err := set.Candles.ListInstruments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, insts)

	first, err := set.Alerted.MarkIfAbsent(ctx, domain.NewAlertKey("A", domain.PatternDoubleTopBuy, 1))
	require.NoError(t, err)
	assert.True(t, first)
}

func TestOpen_RequiresPostgres(t *testing.T) {
	_, _, err := Open(context.Background(), &config.Config{}, Options{})
	assert.ErrorContains(t, err, "POSTGRES_DSN")
}
