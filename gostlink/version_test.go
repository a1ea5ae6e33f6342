// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gostlink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilityFlagsForVersion_V1(t *testing.T) {
	api, _ := capabilityFlagsForVersion(1, 10)
	assert.Equal(t, jTagApiV1, api)

	api, _ = capabilityFlagsForVersion(1, 11)
	assert.Equal(t, jTagApiV2, api)
}

func TestCapabilityFlagsForVersion_V2Thresholds(t *testing.T) {
	api, flags := capabilityFlagsForVersion(2, 12)
	assert.Equal(t, jTagApiV2, api)
	assert.False(t, flags.Get(flagHasTrace))
	assert.False(t, flags.Get(flagHasApInit))

	_, flags = capabilityFlagsForVersion(2, 13)
	assert.True(t, flags.Get(flagHasTrace))

	_, flags = capabilityFlagsForVersion(2, 24)
	assert.True(t, flags.Get(flagHasJtagSetFreq))
	assert.True(t, flags.Get(flagHasDapReg))
	assert.True(t, flags.Get(flagQuirkJtagDpRead))

	_, flags = capabilityFlagsForVersion(2, 32)
	assert.True(t, flags.Get(flagHasDpBankSel))
	assert.False(t, flags.Get(flagQuirkJtagDpRead), "the DP-read quirk is fixed again from v32 onward")
}

func TestCapabilityFlagsForVersion_V3HasFullBaseline(t *testing.T) {
	api, flags := capabilityFlagsForVersion(3, 0)
	assert.Equal(t, jTagApiV3, api)
	assert.True(t, flags.Get(flagHasTrace))
	assert.True(t, flags.Get(flagHasGetLastRwStatus2))
	assert.True(t, flags.Get(flagHasDapReg))
	assert.True(t, flags.Get(flagHasMem16Bit))
	assert.True(t, flags.Get(flagHasApInit))
	assert.True(t, flags.Get(flagFixCloseAp))
	assert.False(t, flags.Get(flagHasDpBankSel))
	assert.False(t, flags.Get(flagHasRw8Bytes512))

	_, flags = capabilityFlagsForVersion(3, 6)
	assert.True(t, flags.Get(flagHasRw8Bytes512))
}

func TestCapabilityFlagsForVersion_UnknownGenerationHasNoFlags(t *testing.T) {
	api, flags := capabilityFlagsForVersion(9, 100)
	assert.Equal(t, jTagApiV1, api)
	assert.False(t, flags.Get(flagHasTrace))
}
