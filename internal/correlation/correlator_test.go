package correlation

import (
	"testing"
	"time"

	"github.com/Veraticus/dispute-triage/internal/model"
	"github.com/Veraticus/dispute-triage/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const window = 3 * time.Minute

func TestCorrelator_Correlate(t *testing.T) {
	txns := []model.Transaction{
		testutil.Txn("T1").Build(),
		testutil.Txn("T2").Merchant("Other Shop").Build(),
	}
	c := New(txns, window)

	rec := c.Correlate(testutil.Dispute("D1", "T2", "never arrived"))
	require.True(t, rec.Matched)
	assert.Equal(t, "Other Shop", rec.Transaction.Merchant)
	assert.Equal(t, "D1", rec.Dispute.ID)

	rec = c.Correlate(testutil.Dispute("D2", "T404", "never arrived"))
	assert.False(t, rec.Matched)
	assert.Equal(t, model.Transaction{}, rec.Transaction)
}

func TestCorrelator_RepeatedIDKeepsFirst(t *testing.T) {
	txns := []model.Transaction{
		testutil.Txn("T1").Merchant("First").Build(),
		testutil.Txn("T1").Merchant("Second").Build(),
	}
	c := New(txns, window)

	txn, ok := c.Lookup("T1")
	require.True(t, ok)
	assert.Equal(t, "First", txn.Merchant)
	assert.Equal(t, 2, c.Len())
}

func TestCorrelator_DuplicateOf(t *testing.T) {
	tests := []struct {
		name   string
		txns   []model.Transaction
		wantID string
	}{
		{
			name: "same charge within window",
			txns: []model.Transaction{
				testutil.Txn("T1").Build(),
				testutil.Txn("T2").After(2 * time.Minute).Build(),
			},
			wantID: "T2",
		},
		{
			name: "exactly at window edge",
			txns: []model.Transaction{
				testutil.Txn("T1").Build(),
				testutil.Txn("T2").After(window).Build(),
			},
			wantID: "T2",
		},
		{
			name: "earlier charge counts",
			txns: []model.Transaction{
				testutil.Txn("T0").After(-time.Minute).Build(),
				testutil.Txn("T1").Build(),
			},
			wantID: "T0",
		},
		{
			name: "outside window",
			txns: []model.Transaction{
				testutil.Txn("T1").Build(),
				testutil.Txn("T2").After(window + time.Second).Build(),
			},
		},
		{
			name: "different amount",
			txns: []model.Transaction{
				testutil.Txn("T1").Build(),
				testutil.Txn("T2").Amount("25.01").After(time.Minute).Build(),
			},
		},
		{
			name: "different merchant",
			txns: []model.Transaction{
				testutil.Txn("T1").Build(),
				testutil.Txn("T2").Merchant("Elsewhere").After(time.Minute).Build(),
			},
		},
		{
			name: "merchant case ignored",
			txns: []model.Transaction{
				testutil.Txn("T1").Build(),
				testutil.Txn("T2").Merchant("ACME STORE").After(time.Minute).Build(),
			},
			wantID: "T2",
		},
		{
			name: "different customer",
			txns: []model.Transaction{
				testutil.Txn("T1").Build(),
				testutil.Txn("T2").Customer("C2").After(time.Minute).Build(),
			},
		},
		{
			name: "missing customer does not exclude",
			txns: []model.Transaction{
				testutil.Txn("T1").Build(),
				testutil.Txn("T2").Customer("").After(time.Minute).Build(),
			},
			wantID: "T2",
		},
		{
			name: "candidate without timestamp",
			txns: []model.Transaction{
				testutil.Txn("T1").Build(),
				testutil.Txn("T2").NoTimestamp().Build(),
			},
		},
		{
			name: "nearest wins",
			txns: []model.Transaction{
				testutil.Txn("T1").Build(),
				testutil.Txn("T2").After(2 * time.Minute).Build(),
				testutil.Txn("T3").After(-30 * time.Second).Build(),
			},
			wantID: "T3",
		},
		{
			name: "equal distance goes to earlier row",
			txns: []model.Transaction{
				testutil.Txn("T1").Build(),
				testutil.Txn("T2").After(time.Minute).Build(),
				testutil.Txn("T3").After(-time.Minute).Build(),
			},
			wantID: "T2",
		},
		{
			name: "repeated id is not its own duplicate",
			txns: []model.Transaction{
				testutil.Txn("T1").Build(),
				testutil.Txn("T1").After(time.Minute).Build(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.txns, window)
			target, ok := c.Lookup("T1")
			require.True(t, ok)

			dup, found := c.DuplicateOf(target)
			if tt.wantID == "" {
				assert.False(t, found)
				return
			}
			require.True(t, found)
			assert.Equal(t, tt.wantID, dup.ID)
		})
	}
}

func TestCorrelator_DuplicateOf_NoTimestamp(t *testing.T) {
	txns := []model.Transaction{
		testutil.Txn("T1").NoTimestamp().Build(),
		testutil.Txn("T2").Build(),
	}
	c := New(txns, window)

	_, found := c.DuplicateOf(txns[0])
	assert.False(t, found)
}
