package reshare_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestReshare(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "reshare suite")
}
