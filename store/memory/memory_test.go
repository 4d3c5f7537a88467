package memory

import (
	"testing"

	check "gopkg.in/check.v1"

	"github.com/findingsimple/simple-search/store/storetest"
)

// Initialize and register a pointer instance of the inMemoryStoreTestSuite
// to be executed by check testing package.
var _ = check.Suite(new(inMemoryStoreTestSuite))

// Test registers the [check] library with the go testing library and enables
// the running of the test suite using the go testing library.
func Test(t *testing.T) {
	check.TestingT(t)
}

// inMemoryStoreTestSuite embeds and runs the BaseSuite test methods.
type inMemoryStoreTestSuite struct {
	storetest.BaseSuite
}

// SetUpTest runs before each test and provides a fresh store so tests
// never observe each other's writes.
func (s *inMemoryStoreTestSuite) SetUpTest(_ *check.C) {
	s.SetStore(NewInMemoryStore())
}
