// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"

	"github.com/drillstream/drillstream/wire"
)

// AuthorizationGate decides whether a session may issue a request.
// Check runs once per inbound message before dispatch; a non-nil error
// answers that correlation id with a RequestDenied exception and the
// message never reaches its handler. Policy lives behind this
// interface, not in the protocol layer.
type AuthorizationGate interface {
	Check(ctx context.Context, sessionID string, header wire.MessageHeader) error
}

// AllowAll is the default gate: every request passes.
type AllowAll struct{}

func (AllowAll) Check(ctx context.Context, sessionID string, header wire.MessageHeader) error {
	return nil
}
