package prompt

import (
	"errors"
	"testing"

	"github.com/manifoldco/promptui"
	"github.com/stretchr/testify/assert"
)

func TestIsAborted(t *testing.T) {
	assert.True(t, IsAborted(ErrAborted))
	assert.True(t, IsAborted(promptui.ErrInterrupt))
	assert.True(t, IsAborted(promptui.ErrAbort))
	assert.False(t, IsAborted(errors.New("some other error")))
}

func TestConfirmWithForce_ForceSkipsPrompt(t *testing.T) {
	confirmed, err := ConfirmWithForce("destroy thing?", true)
	assert.NoError(t, err)
	assert.True(t, confirmed)
}
