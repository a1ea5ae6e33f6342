// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package flash

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestFlash(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "flash builder behavior suite")
}
