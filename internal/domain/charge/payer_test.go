package charge

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitName(t *testing.T) {
	tests := []struct {
		name, first, last string
	}{
		{"Ana Maria Souza", "Ana", "Maria Souza"},
		{"  Ana   Souza ", "Ana", "Souza"},
		{"Ana", "Ana", "Silva"},
		{"", "Cliente", "Silva"},
		{"   ", "Cliente", "Silva"},
	}
	for _, tt := range tests {
		first, last := splitName(tt.name)
		assert.Equal(t, tt.first, first, tt.name)
		assert.Equal(t, tt.last, last, tt.name)
	}
}

func TestPayerEmail(t *testing.T) {
	assert.Equal(t, "ana@example.com", payerEmail(" ana@example.com ", "o1"))
	assert.Equal(t, "comprador+o1@yshpics.com.br", payerEmail("", "o1"))
	assert.Equal(t, "comprador+o1@yshpics.com.br", payerEmail("ana.example.com", "o1"))
}

func TestValidCPF(t *testing.T) {
	assert.True(t, ValidCPF("52998224725"))
	assert.False(t, ValidCPF("52998224726"))
	assert.False(t, ValidCPF("5299822472"))
	assert.False(t, ValidCPF("5299822472a"))
}

func TestFabricatedCPF_ValidCheckDigits(t *testing.T) {
	src := FabricatedCPF{rnd: rand.New(rand.NewPCG(1, 2))}
	for range 200 {
		id := src.TaxID()
		require.Equal(t, "CPF", id.Type)
		require.Len(t, id.Number, 11)
		require.True(t, ValidCPF(id.Number), id.Number)
	}

	// The zero value draws from the global source.
	assert.True(t, ValidCPF(FabricatedCPF{}.TaxID().Number))
}
