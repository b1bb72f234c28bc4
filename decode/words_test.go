package decode

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWords(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "base64 token",
			input: "=?UTF-8?B?SGVsbG8=?=",
			want:  "Hello",
		},
		{
			name:  "q token",
			input: "=?UTF-8?Q?Jane=20Doe?=",
			want:  "Jane Doe",
		},
		{
			name:  "lowercase markers",
			input: "=?utf-8?b?SGVsbG8=?=",
			want:  "Hello",
		},
		{
			name:  "adjacent tokens are concatenated",
			input: "=?UTF-8?B?SGVs?= =?UTF-8?B?bG8=?=",
			want:  "Hello",
		},
		{
			name:  "literal text around tokens is dropped",
			input: "Re: =?UTF-8?B?SGVsbG8=?= (fwd)",
			want:  "Hello",
		},
		{
			name:  "euc-kr token",
			input: "=?EUC-KR?B?vsiz58fPvLy/5A==?=",
			want:  "안녕하세요",
		},
		{
			name:  "ks_c_5601-1987 token",
			input: "=?ks_c_5601-1987?B?vsiz58fPvLy/5A==?=",
			want:  "안녕하세요",
		},
		{
			name:  "display name with address",
			input: "=?UTF-8?Q?Jane=20Doe?= <jane@example.com>",
			want:  "Jane Doe",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Words(tt.input))
		})
	}
}

func TestWordsWithoutTokensIsIdentity(t *testing.T) {
	for _, s := range []string{
		"",
		"Plain subject",
		"=? not a token",
		"100% =?",
		"Jane Doe <jane@example.com>",
	} {
		assert.Equal(t, s, Words(s))
		assert.Equal(t, Words(s), Words(Words(s)))
	}
}

func TestWordsEmptyDecodeKeepsInput(t *testing.T) {
	in := "=?UTF-8?B?====?="
	assert.Equal(t, in, Words(in))
}

func TestWordsConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.Equal(t, "HelloHello", Words("=?UTF-8?B?SGVsbG8=?= =?UTF-8?B?SGVsbG8=?="))
			}
		}()
	}
	wg.Wait()
}
