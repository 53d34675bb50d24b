// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"

	"github.com/drillstream/drillstream/chunk"
	"github.com/drillstream/drillstream/wire"
)

// ChannelContentType labels channel resources in discovery responses.
const ChannelContentType = "application/x-drillstream-channel"

// ChannelResolver resolves a parent uri (a well log) to its stored
// channels.
type ChannelResolver struct {
	Store   *chunk.Store
	Version int
}

var _ ObjectResolver = (*ChannelResolver)(nil)

func (r *ChannelResolver) SchemaVersion() int { return r.Version }

func (r *ChannelResolver) Resolve(ctx context.Context, uri string) ([]wire.Resource, error) {
	channels, err := r.Store.ChannelsByParent(ctx, uri)
	if err != nil {
		return nil, err
	}
	resources := make([]wire.Resource, len(channels))
	for i, channel := range channels {
		resources[i] = wire.Resource{
			URI:          channel.URI,
			Name:         channel.Mnemonic,
			ContentType:  ChannelContentType,
			ResourceType: wire.ResourceTypeObject,
			HasChildren:  0,
			LastChanged:  channel.LastAppend.Unix(),
		}
	}
	return resources, nil
}
