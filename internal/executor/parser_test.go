package executor

import (
	"strings"
	"testing"
)

const passFailStream = `{"Action":"run","Package":"example.com/generated","Test":"TestCreateItemHappy1"}
{"Action":"output","Package":"example.com/generated","Test":"TestCreateItemHappy1","Output":"=== RUN   TestCreateItemHappy1\n"}
{"Action":"pass","Package":"example.com/generated","Test":"TestCreateItemHappy1","Elapsed":0.12}
{"Action":"run","Package":"example.com/generated","Test":"TestGetItemByIdNotFound"}
{"Action":"output","Package":"example.com/generated","Test":"TestGetItemByIdNotFound","Output":"    client.go:88: expected status 404, got 200\n"}
{"Action":"fail","Package":"example.com/generated","Test":"TestGetItemByIdNotFound","Elapsed":0.05}
{"Action":"run","Package":"example.com/generated","Test":"TestListItemsHappy1"}
{"Action":"skip","Package":"example.com/generated","Test":"TestListItemsHappy1","Elapsed":0}
{"Action":"fail","Package":"example.com/generated","Elapsed":0.2}
`

func TestParseTestOutputCounts(t *testing.T) {
	result := parseTestOutput(passFailStream, "", 1)

	if result.InfrastructureFailure {
		t.Fatal("a run with test events is not an infrastructure failure")
	}
	if result.Total != 3 || result.Passed != 1 || result.Failed != 1 || result.Skipped != 1 {
		t.Fatalf("counts = %d/%d/%d/%d", result.Total, result.Passed, result.Failed, result.Skipped)
	}

	fail := result.Detail("TestGetItemByIdNotFound")
	if fail == nil || fail.Status != StatusFail {
		t.Fatalf("missing failing detail: %+v", fail)
	}
	if !strings.Contains(fail.Output, "expected status 404, got 200") {
		t.Errorf("failure output lost: %q", fail.Output)
	}

	failed := result.FailedDetails()
	if len(failed) != 1 || failed[0].Name != "TestGetItemByIdNotFound" {
		t.Errorf("FailedDetails = %+v", failed)
	}
}

func TestParseTestOutputInfrastructureFailure(t *testing.T) {
	stderr := "generated/items_test.go:12:2: undefined: testutil.RequireStatuz\nFAIL example.com/generated [build failed]"
	result := parseTestOutput("", stderr, 2)

	if !result.InfrastructureFailure {
		t.Fatal("non-zero exit with no test events must be an infrastructure failure")
	}
	if !strings.Contains(result.RawOutput, "build failed") {
		t.Error("raw output lost the compiler message")
	}
}

func TestParseTestOutputCleanEmptyRun(t *testing.T) {
	result := parseTestOutput("", "", 0)
	if result.InfrastructureFailure {
		t.Error("zero exit with no tests is not an infrastructure failure")
	}
	if result.Total != 0 {
		t.Errorf("total = %d", result.Total)
	}
}

func TestParseTestOutputSubtestsRollUp(t *testing.T) {
	stream := `{"Action":"run","Package":"p","Test":"TestOuter"}
{"Action":"output","Package":"p","Test":"TestOuter/case1","Output":"sub output\n"}
{"Action":"fail","Package":"p","Test":"TestOuter/case1","Elapsed":0.01}
{"Action":"fail","Package":"p","Test":"TestOuter","Elapsed":0.02}
`
	result := parseTestOutput(stream, "", 1)
	if result.Total != 1 {
		t.Fatalf("subtests must roll up into the parent, total = %d", result.Total)
	}
	detail := result.Detail("TestOuter")
	if detail == nil || detail.Status != StatusFail {
		t.Fatalf("detail = %+v", detail)
	}
	if !strings.Contains(detail.Output, "sub output") {
		t.Error("subtest output lost")
	}
}

func TestParseTestOutputInterruptedTestIsFailure(t *testing.T) {
	stream := `{"Action":"run","Package":"p","Test":"TestHangs"}
{"Action":"output","Package":"p","Test":"TestHangs","Output":"started\n"}
`
	result := parseTestOutput(stream, "", 1)
	detail := result.Detail("TestHangs")
	if detail == nil || detail.Status != StatusFail {
		t.Fatalf("test without a terminal event must count as failed: %+v", detail)
	}
}

func TestParseTestOutputIgnoresGarbageLines(t *testing.T) {
	stream := "not json at all\n" +
		`{"Action":"pass","Package":"p","Test":"TestOK","Elapsed":0.01}` + "\n" +
		"{broken json\n"
	result := parseTestOutput(stream, "", 0)
	if result.Passed != 1 || result.Total != 1 {
		t.Errorf("counts = %d/%d", result.Passed, result.Total)
	}
}
