package livetableintegrationtests

import (
	"flag"
	"log"
	"os"
	"testing"

	"github.com/Black-And-White-Club/livetable-gateway/integration_tests/testutils"
)

// testEnv is the shared test environment managed by TestMain.
var testEnv *testutils.TestEnvironment

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		log.Println("Skipping live table integration tests in short mode")
		os.Exit(0)
	}

	var err error
	testEnv, err = testutils.NewTestEnvironment()
	if err != nil {
		log.Fatalf("Exiting due to failed test environment initialization: %v", err)
	}

	oldAppEnv := os.Getenv("APP_ENV")
	os.Setenv("APP_ENV", "test")

	code := m.Run()

	os.Setenv("APP_ENV", oldAppEnv)
	testEnv.Cleanup()
	os.Exit(code)
}
