// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
)

type ErrSuite struct {
	suite.Suite
}

func (s *ErrSuite) TestCode() {
	err := WrapErrChannelNotFound("general")
	wrapped := errors.Wrap(err, "failed to route message")
	s.ErrorIs(wrapped, ErrChannelNotFound)
	s.Equal(Code(ErrChannelNotFound), Code(wrapped))
	s.Equal(int32(20100), Code(err))
	s.Equal(TimeoutCode, Code(context.DeadlineExceeded))
	s.Equal(CanceledCode, Code(context.Canceled))
	s.Equal(errUnexpected.errCode, Code(errors.New("boom")))
	s.Equal(int32(0), Code(nil))

	sameCodeErr := newChatError("new error", ErrChannelNotFound.errCode, false)
	s.True(sameCodeErr.Is(ErrChannelNotFound))
}

func (s *ErrSuite) TestUserErrorCatalog() {
	cases := []struct {
		err  error
		code int32
	}{
		{WrapErrChannelNameInvalid(""), 20001},
		{WrapErrChannelMemberDuplicate("general", "alice"), 20002},
		{WrapErrMessageInvalid("general"), 20003},
		{WrapErrChannelSystemManual("Local"), 20004},
		{WrapErrConsumerAlreadyConnected("ref-1"), 20005},
	}
	for _, c := range cases {
		s.Equal(c.code, Code(c.err), c.err.Error())
		s.True(IsUserError(c.err), c.err.Error())
		s.Equal(InputError, GetErrorType(c.err))
	}
}

func (s *ErrSuite) TestIllegalErrorsAreSystemErrors() {
	s.False(IsUserError(WrapErrChannelNotFound("general")))
	s.False(IsUserError(WrapErrChannelNotMember("general", "bob")))
	s.Equal(SystemError, GetErrorType(errors.New("plain")))
	s.False(IsUserError(nil))
}

func (s *ErrSuite) TestWrapFields() {
	err := WrapErrChannelMemberDuplicate("general", "alice")
	s.Equal("already a member of this channel[channel=general][member=alice]", err.Error())

	err = WrapErrServiceUnavailable("router stopped", "join")
	s.ErrorIs(err, ErrServiceUnavailable)
	s.Contains(err.Error(), "router stopped")

	err = WrapErrParameterInvalidRange(1, 64, 0, "mailbox size")
	s.ErrorIs(err, ErrParameterInvalid)
	s.Contains(err.Error(), "0 out of range 1 <= value <= 64")
}

func (s *ErrSuite) TestWrap() {
	s.ErrorIs(WrapErrServiceNotReady("router", "Stopped"), ErrServiceNotReady)
	s.ErrorIs(WrapErrTooManyRequests(100, "mailbox full"), ErrServiceTooManyRequests)
	s.ErrorIs(WrapErrServiceInternal("never throw out"), ErrServiceInternal)
	s.ErrorIs(WrapErrParameterInvalid("yaml", "toml"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterInvalidMsg("bad %s", "addr"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterMissing("gateway.listen_addr"), ErrParameterMissing)
	s.ErrorIs(WrapErrChannelNotMember("general", "bob", "send"), ErrChannelNotMember)
	s.ErrorIs(WrapErrGatewayOpUnknown(99), ErrGatewayOpUnknown)
	s.ErrorIs(WrapErrGatewayFrameInvalid("truncated"), ErrGatewayFrameInvalid)
	s.ErrorIs(WrapErrGatewayNameInvalid(""), ErrGatewayNameInvalid)
	s.ErrorIs(WrapErrGatewaySendQueueFull("ref-1", 8), ErrGatewaySendQueueFull)
	s.True(IsRetryableErr(WrapErrGatewaySendQueueFull("ref-1", 8)))
	s.False(IsRetryableErr(WrapErrChannelNotFound("general")))
}

func (s *ErrSuite) TestInputErrorConversion() {
	err := WrapErrAsInputError(ErrServiceInternal)
	s.True(IsUserError(err))
	s.False(IsUserError(ErrServiceInternal))

	plain := errors.New("plain")
	s.Equal(plain, WrapErrAsInputError(plain))
}

func (s *ErrSuite) TestCombine() {
	var (
		errFirst  = errors.New("first")
		errSecond = errors.New("second")
		errThird  = errors.New("third")
	)

	err := Combine(errFirst, errSecond)
	s.True(errors.Is(err, errFirst))
	s.True(errors.Is(err, errSecond))
	s.False(errors.Is(err, errThird))

	s.Equal("first: second", err.Error())
}

func (s *ErrSuite) TestCombineOnlyNil() {
	s.Nil(Combine(nil, nil))
	s.NotNil(Combine(nil, errors.New("non-nil")))
}

func (s *ErrSuite) TestCombineCode() {
	err := Combine(WrapErrChannelNotMember("a", "b"), WrapErrChannelNotFound("c"))
	s.Equal(Code(ErrChannelNotFound), Code(err))
}

func TestErrors(t *testing.T) {
	suite.Run(t, new(ErrSuite))
}
