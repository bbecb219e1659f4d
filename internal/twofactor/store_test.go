package twofactor_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glosapay/glosapay/internal/twofactor"
)

func TestConsumeCodeClearsStore(t *testing.T) {
	s := twofactor.NewStore()

	assert.False(t, s.HasCode())

	s.SetCode("123456")
	assert.True(t, s.HasCode())

	code, ok := s.ConsumeCode()
	require.True(t, ok)
	assert.Equal(t, "123456", code)

	// Second consume with no intervening SetCode finds nothing.
	code, ok = s.ConsumeCode()
	assert.False(t, ok)
	assert.Empty(t, code)
	assert.False(t, s.HasCode())
}

func TestSetCodeReplacesPending(t *testing.T) {
	s := twofactor.NewStore()

	s.SetCode("111111")
	s.SetCode("222222")

	code, ok := s.ConsumeCode()
	require.True(t, ok)
	assert.Equal(t, "222222", code)
}

func TestConcurrentConsumersGetCodeOnce(t *testing.T) {
	s := twofactor.NewStore()
	s.SetCode("654321")

	const consumers = 16
	var wg sync.WaitGroup
	got := make(chan string, consumers)

	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if code, ok := s.ConsumeCode(); ok {
				got <- code
			}
		}()
	}
	wg.Wait()
	close(got)

	var codes []string
	for code := range got {
		codes = append(codes, code)
	}
	require.Len(t, codes, 1, "exactly one consumer may observe the code")
	assert.Equal(t, "654321", codes[0])
}
