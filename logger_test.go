package dagflow

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerLevels(t *testing.T) {
	ctx := context.Background()
	require.False(t, NewLogger().Enabled(ctx, slog.LevelDebug))
	require.True(t, NewLogger().Enabled(ctx, slog.LevelInfo))
	require.True(t, NewLoggerWithLevel(slog.LevelDebug).Enabled(ctx, slog.LevelDebug))
}
