package worker

import (
	"testing"

	"github.com/hkdb/nolas-go/internal/models"
)

func accountsWithIDs(n int) []models.Account {
	accounts := make([]models.Account, n)
	for i := range accounts {
		accounts[i].ID = int64(i + 1)
	}
	return accounts
}

func TestShardDistributesEvenly(t *testing.T) {
	shards := shard(accountsWithIDs(9), 3)
	if len(shards) != 3 {
		t.Fatalf("expected 3 shards, got %d", len(shards))
	}
	for i, s := range shards {
		if len(s) != 3 {
			t.Errorf("shard %d: expected 3 accounts, got %d", i, len(s))
		}
	}
}

func TestShardLastAbsorbsRemainder(t *testing.T) {
	shards := shard(accountsWithIDs(10), 3)
	if len(shards) != 3 {
		t.Fatalf("expected 3 shards, got %d", len(shards))
	}
	if len(shards[0]) != 3 || len(shards[1]) != 3 {
		t.Fatalf("expected first shards of size 3, got %d and %d", len(shards[0]), len(shards[1]))
	}
	if len(shards[2]) != 4 {
		t.Errorf("expected last shard to absorb the remainder (4), got %d", len(shards[2]))
	}
}

func TestShardFewerAccountsThanWorkers(t *testing.T) {
	shards := shard(accountsWithIDs(2), 5)
	total := 0
	for _, s := range shards {
		total += len(s)
	}
	if total != 2 {
		t.Errorf("expected all 2 accounts distributed, got %d", total)
	}
}

func TestShardNoAccounts(t *testing.T) {
	shards := shard(nil, 4)
	total := 0
	for _, s := range shards {
		total += len(s)
	}
	if total != 0 {
		t.Errorf("expected no accounts, got %d", total)
	}
}
