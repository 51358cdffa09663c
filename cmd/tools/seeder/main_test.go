package main

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-galeri/internal/catalog"
	"github.com/noah-isme/backend-galeri/internal/pricing"
)

func TestEvictProfilesDropsCachedEntries(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, mr.Set("catalog:profile:wedding-2024", `{"galleryId":"wedding-2024","basePrice":900}`))
	require.NoError(t, mr.Set("catalog:profile:portrait-session", `{"galleryId":"portrait-session","basePrice":700}`))

	inv := catalog.CachedSource{Cache: catalog.NewCache(client, 0)}
	failed := evictProfiles(context.Background(), inv, []string{"wedding-2024"})
	require.Zero(t, failed)
	require.False(t, mr.Exists("catalog:profile:wedding-2024"))
	require.True(t, mr.Exists("catalog:profile:portrait-session"))

	mr.Close()
	require.Equal(t, 1, evictProfiles(context.Background(), inv, []string{"portrait-session"}))
}

func TestFixturesPassPricingValidation(t *testing.T) {
	for _, g := range galleries {
		_, err := pricing.ComputeBundlePrice(g.Base, g.Tiers, 1)
		require.NoError(t, err, g.ID)
	}
}
