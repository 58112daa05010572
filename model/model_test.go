package model

import (
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
)

func TestSplitQuantityRemainderGoesFirst(t *testing.T) {
	assert.Equal(t, []int64{34, 33, 33}, SplitQuantity(100, 3))
	assert.Equal(t, []int64{25, 25, 25, 25}, SplitQuantity(100, 4))
	assert.Equal(t, []int64{1, 1, 0}, SplitQuantity(2, 3))
	assert.Equal(t, []int64{7}, SplitQuantity(7, 1))
	assert.Nil(t, SplitQuantity(10, 0))
}

func TestSplitQuantityConservesTotal(t *testing.T) {
	for i := 0; i < 50; i++ {
		total := int64(gofakeit.Number(1, 100000))
		n := gofakeit.Number(1, 20)
		parts := SplitQuantity(total, n)
		assert.Len(t, parts, n)

		var sum int64
		for j, part := range parts {
			sum += part
			if j > 0 {
				assert.LessOrEqual(t, parts[j-1]-part, int64(1))
				assert.GreaterOrEqual(t, parts[j-1], part)
			}
		}
		assert.Equal(t, total, sum)
	}
}

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("txn")
	assert.Contains(t, id, "txn_")
	assert.NotEqual(t, id, GenerateUUIDWithSuffix("txn"))
}

func TestServiceKindFromName(t *testing.T) {
	assert.Equal(t, ServiceFollowers, ServiceKindFromName("1000 Followers HQ"))
	assert.Equal(t, ServiceFollowers, ServiceKindFromName("Seguidores Brasileiros"))
	assert.Equal(t, ServiceLikes, ServiceKindFromName("Curtidas Instantaneas"))
	assert.Equal(t, ServiceLikes, ServiceKindFromName("Instagram Likes"))
	assert.Equal(t, ServiceComments, ServiceKindFromName("Comentarios Personalizados"))
	assert.Equal(t, ServiceReels, ServiceKindFromName("Visualizacoes Reels"))
	assert.Equal(t, ServiceGeneric, ServiceKindFromName("Story Views"))
}

func TestResolveServiceSpecMetadataWinsOverColumn(t *testing.T) {
	spec, mismatch := ResolveServiceSpec(&Transaction{
		ServiceKind: ServiceLikes,
		Quantity:    100,
		Link:        "https://instagram.com/p/Caaa111",
		MetaData:    map[string]interface{}{"service_kind": "reels"},
	})
	assert.True(t, mismatch)
	assert.Equal(t, ServiceReels, spec.Kind)
}

func TestResolveServiceSpecFallsBackToNameShim(t *testing.T) {
	spec, mismatch := ResolveServiceSpec(&Transaction{
		ServiceName: "Seguidores Premium",
		Quantity:    500,
	})
	assert.False(t, mismatch)
	assert.Equal(t, ServiceFollowers, spec.Kind)
	assert.Equal(t, int64(500), spec.Quantity)
}

func TestResolveServiceSpecTargetsFromMetadata(t *testing.T) {
	spec, _ := ResolveServiceSpec(&Transaction{
		ServiceKind: ServiceLikes,
		Quantity:    100,
		Link:        "https://instagram.com/p/Czzz999",
		MetaData: map[string]interface{}{
			"posts": []interface{}{
				map[string]interface{}{"code": "Caaa111"},
				map[string]interface{}{"link": "https://instagram.com/p/Cbbb222", "quantity": float64(40)},
				map[string]interface{}{},
				"not a post",
			},
		},
	})
	// Metadata posts replace the single-link fallback; malformed entries drop.
	assert.Len(t, spec.Targets, 2)
	assert.Equal(t, "Caaa111", spec.Targets[0].Code)
	assert.Equal(t, int64(40), spec.Targets[1].Quantity)
}

func TestResolveServiceSpecSingleLinkFallback(t *testing.T) {
	spec, _ := ResolveServiceSpec(&Transaction{
		ServiceKind: ServiceLikes,
		Quantity:    100,
		Link:        "https://instagram.com/p/Caaa111",
	})
	assert.Len(t, spec.Targets, 1)
	assert.Equal(t, "https://instagram.com/p/Caaa111", spec.Targets[0].Link)
}

func TestResolveServiceSpecQuantityOverride(t *testing.T) {
	spec, _ := ResolveServiceSpec(&Transaction{
		ServiceKind: ServiceLikes,
		Quantity:    100,
		MetaData:    map[string]interface{}{"quantity": float64(250)},
	})
	assert.Equal(t, int64(250), spec.Quantity)
}

func TestTargetCanonicalKey(t *testing.T) {
	assert.Equal(t, "https://instagram.com/p/Caaa111",
		Target{Link: "https://www.instagram.com/p/Caaa111/?utm_source=share"}.CanonicalKey())
	assert.Equal(t, "Caaa111", Target{Code: "Caaa111"}.CanonicalKey())
	assert.Equal(t, "https://example.com/x", Target{Link: "https://example.com/x"}.CanonicalKey())
	assert.Equal(t, "", Target{}.CanonicalKey())
}

func TestTargetResolvedCode(t *testing.T) {
	assert.Equal(t, "Cbbb222", Target{Code: "Cbbb222", Link: "https://instagram.com/p/Caaa111"}.ResolvedCode())
	assert.Equal(t, "Caaa111", Target{Link: "https://instagram.com/reel/Caaa111"}.ResolvedCode())
	assert.Equal(t, "", Target{Link: "https://instagram.com/someuser"}.ResolvedCode())
}

func TestProviderErrorClassification(t *testing.T) {
	assert.True(t, NewConnectionError(assert.AnError).Retryable())
	assert.False(t, NewBusinessError("bad link").Retryable())
	assert.True(t, NewBusinessError("Insufficient funds").IsBalanceError())
	assert.True(t, NewBusinessError("not enough balance").IsBalanceError())
	assert.False(t, NewBusinessError("invalid service").IsBalanceError())
}
