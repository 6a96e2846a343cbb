package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("connection refused")

	// When: wrapping with RankError
	rankErr := New(ErrCodeEmbeddingFailed, "embedding request failed", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, rankErr)
	assert.Equal(t, originalErr, errors.Unwrap(rankErr))
	assert.True(t, errors.Is(rankErr, originalErr))
}

func TestRankError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigInvalid,
			message:  "bad provider",
			expected: "[ERR_102_CONFIG_INVALID] bad provider",
		},
		{
			name:     "empty corpus",
			code:     ErrCodeEmptyCorpus,
			message:  "no documents",
			expected: "[ERR_207_EMPTY_CORPUS] no documents",
		},
		{
			name:     "not fitted",
			code:     ErrCodeNotFitted,
			message:  "fit first",
			expected: "[ERR_506_NOT_FITTED] fit first",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestRankError_Is_MatchesSentinelsByCode(t *testing.T) {
	// Given: errors built independently from the sentinels
	empty := EmptyCorpusError("/tmp/docs")
	judgment := InvalidJudgmentError("q1", "empty id list")
	notFitted := New(ErrCodeNotFitted, "query before fit", nil)

	// Then: they match their sentinels through wrapping
	assert.ErrorIs(t, fmt.Errorf("load: %w", empty), ErrEmptyCorpus)
	assert.ErrorIs(t, judgment, ErrInvalidJudgment)
	assert.ErrorIs(t, notFitted, ErrNotFitted)
	assert.NotErrorIs(t, empty, ErrNotFitted)
}

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeEmptyCorpus, CategoryIO, SeverityError, false},
		{ErrCodeNetworkTimeout, CategoryNetwork, SeverityWarning, true},
		{ErrCodeInvalidJudgment, CategoryValidation, SeverityWarning, false},
		{ErrCodeNotFitted, CategoryInternal, SeverityFatal, false},
		{ErrCodeScoringFailed, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestCategoryFromCode_ShortCodeIsInternal(t *testing.T) {
	assert.Equal(t, CategoryInternal, categoryFromCode("ERR"))
}

func TestRankError_WithDetailAndSuggestion(t *testing.T) {
	// Given: a base error
	err := New(ErrCodeFileNotFound, "file not found", nil)

	// When: chaining detail and suggestion
	err.WithDetail("path", "docs/a.md").WithSuggestion("check the path")

	// Then: both are recorded
	assert.Equal(t, "docs/a.md", err.Details["path"])
	assert.Equal(t, "check the path", err.Suggestion)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestHelpers_FindRankErrorThroughWrapping(t *testing.T) {
	// Given: a retryable network error wrapped by plumbing code
	base := NetworkError("ollama unreachable", errors.New("dial tcp"))
	wrapped := fmt.Errorf("embed batch: %w", base)

	// Then: helpers see through the wrapping
	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsFatal(wrapped))
	assert.Equal(t, ErrCodeNetworkUnavailable, GetCode(wrapped))
	assert.Equal(t, CategoryNetwork, GetCategory(wrapped))

	// And: plain errors yield zero values
	plain := errors.New("plain")
	assert.False(t, IsRetryable(plain))
	assert.Empty(t, GetCode(plain))
	assert.Empty(t, GetCategory(plain))
	assert.True(t, IsFatal(ErrNotFitted))
}

func TestGetMessage_DropsCodePrefix(t *testing.T) {
	re := InvalidJudgmentError("q", "empty id list")
	wrapped := fmt.Errorf("loading: %w", re)

	assert.Equal(t, `invalid judgment for query "q": empty id list`, GetMessage(wrapped))
	assert.Equal(t, "plain", GetMessage(errors.New("plain")))
	assert.Empty(t, GetMessage(nil))
}
