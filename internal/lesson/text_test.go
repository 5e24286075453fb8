package lesson

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompactReframe(t *testing.T) {
	t.Run("head and three numbered steps", func(t *testing.T) {
		raw := "Fehler sind Daten. Sie zeigen dir den Weg. Und noch mehr.\n\n- Schritt eins\n2) Schritt zwei\n* Schritt drei\n4. Schritt vier"
		want := "Fehler sind Daten. Sie zeigen dir den Weg.\n\n1. Schritt eins\n2. Schritt zwei\n3. Schritt drei"
		assert.Equal(t, want, CompactReframe(raw))
	})

	t.Run("no bullets keeps head only", func(t *testing.T) {
		assert.Equal(t, "Nur ein Satz.", CompactReframe("\r\n  Nur ein Satz.  \r\n"))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, "", CompactReframe("   "))
	})

	t.Run("head is cut to 200 runes", func(t *testing.T) {
		long := strings.Repeat("ä", 300)
		assert.Equal(t, 200, len([]rune(CompactReframe(long))))
	})

	t.Run("bullet marker alone is the head", func(t *testing.T) {
		out := CompactReframe("• Erst das\n• Dann das")
		assert.Equal(t, "• Erst das\n\n1. Erst das\n2. Dann das", out)
	})
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "a\nb\nc", normalizeText("a\r\nb\\nc"))
}
