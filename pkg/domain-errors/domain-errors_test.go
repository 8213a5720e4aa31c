package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorString() {
	s.Run("message wins over code", func() {
		err := &Error{Code: CodeNotFound, Message: "publish task not found"}
		s.Equal("publish task not found", err.Error())
	})

	s.Run("code when message is empty", func() {
		s.Equal("upstream_error", (&Error{Code: CodeUpstream}).Error())
	})
}

func (s *DomainErrorsSuite) TestMatchingByCode() {
	s.Run("same code matches regardless of message", func() {
		s.True(errors.Is(New(CodeConflict, "already finished"), &Error{Code: CodeConflict}))
	})

	s.Run("different codes do not match", func() {
		s.False(errors.Is(New(CodeConflict, "x"), &Error{Code: CodeNotFound}))
	})

	s.Run("plain errors never match", func() {
		s.False((&Error{Code: CodeNotFound}).Is(errors.New("not_found")))
	})

	s.Run("matches through fmt wrapping", func() {
		err := fmt.Errorf("get task: %w", New(CodeNotFound, "missing"))
		s.True(errors.Is(err, &Error{Code: CodeNotFound}))
	})
}

func (s *DomainErrorsSuite) TestWrap() {
	s.Run("keeps the first code", func() {
		wrapped := Wrap(New(CodeTimeout, "poll deadline"), CodeInternal, "publish failed")
		s.Equal(CodeTimeout, CodeOf(wrapped))
		s.Equal("publish failed", wrapped.Error())
	})

	s.Run("classifies plain errors", func() {
		root := errors.New("dial tcp: refused")
		wrapped := Wrap(root, CodeUpstream, "service unreachable")
		s.Equal(CodeUpstream, CodeOf(wrapped))
		s.True(errors.Is(wrapped, root))
	})
}

func (s *DomainErrorsSuite) TestCodeOf() {
	s.Equal(Code(""), CodeOf(nil))
	s.Equal(Code(""), CodeOf(errors.New("plain")))
	s.Equal(CodeCanceled, CodeOf(New(CodeCanceled, "stopped")))
	s.True(HasCode(New(CodeUnavailable, "no session"), CodeUnavailable))
	s.False(HasCode(nil, CodeNotFound))
}
