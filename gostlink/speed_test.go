// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gostlink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchSpeedMap_ExactHit(t *testing.T) {
	index, err := matchSpeedMap(swdKHzToSpeedMap[:], 1800, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(1800), swdKHzToSpeedMap[index].speed)
}

func TestMatchSpeedMap_RoundsDownToNearestSlowerSupportedSpeed(t *testing.T) {
	index, err := matchSpeedMap(swdKHzToSpeedMap[:], 3000, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(1800), swdKHzToSpeedMap[index].speed)
}

func TestMatchSpeedMap_BelowSlowestFallsBackToSlowestAndErrorsOnQuery(t *testing.T) {
	_, err := matchSpeedMap(swdKHzToSpeedMap[:], 1, false)
	require.NoError(t, err)

	index, err := matchSpeedMap(swdKHzToSpeedMap[:], 1, true)
	require.Error(t, err)
	assert.Equal(t, uint32(5), swdKHzToSpeedMap[index].speed)
}

func TestMatchSpeedMap_AboveFastestClampsToFastest(t *testing.T) {
	index, err := matchSpeedMap(jtagKHzToSpeedMap[:], 100000, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(9000), jtagKHzToSpeedMap[index].speed)
}
