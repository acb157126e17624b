package workflow_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/models"
	"github.com/trend4media/billing_backend/utils"
	"github.com/trend4media/billing_backend/workflow"
)

func TestBillingPeriodEndToEnd(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "billing_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()
	if _, _, err := models.EnsureDefaultRuleSet(ctx); err != nil {
		t.Fatalf("EnsureDefaultRuleSet: %v", err)
	}
	ctx = utils.SetUserIdInContext(ctx, 1)

	newManager := func(username string, role models.UserRole) *models.User {
		u, err := models.CreateUser(ctx, &models.NewUser{
			Username: username,
			Name:     strings.ToUpper(username),
			Password: "password123",
			Role:     role,
		})
		if err != nil {
			t.Fatalf("CreateUser(%s): %v", username, err)
		}
		return u
	}
	a := newManager("lead-a", models.UserRoleTeamLeader)
	b := newManager("lead-b", models.UserRoleTeamLeader)
	c := newManager("rep-c", models.UserRoleSalesRep)

	// 1) Hierarchy A -> B -> C, then reject the cycle C ... A.
	edgeAB, err := workflow.CreateOrgEdge(ctx, &models.NewOrgEdge{ParentId: a.ID, ChildId: b.ID})
	if err != nil {
		t.Fatalf("CreateOrgEdge(A,B): %v", err)
	}
	if _, err := workflow.CreateOrgEdge(ctx, &models.NewOrgEdge{ParentId: b.ID, ChildId: c.ID}); err != nil {
		t.Fatalf("CreateOrgEdge(B,C): %v", err)
	}
	if _, err := workflow.CreateOrgEdge(ctx, &models.NewOrgEdge{ParentId: b.ID, ChildId: a.ID}); !utils.IsValidationError(err) {
		t.Fatalf("expected cycle rejection, got %v", err)
	}
	if _, err := workflow.CreateOrgEdge(ctx, &models.NewOrgEdge{ParentId: a.ID, ChildId: b.ID}); !utils.IsValidationError(err) {
		t.Fatalf("expected duplicate edge rejection, got %v", err)
	}
	d := newManager("lead-d", models.UserRoleTeamLeader)
	if _, err := workflow.CreateOrgEdge(ctx, &models.NewOrgEdge{ParentId: d.ID, ChildId: c.ID}); !utils.IsValidationError(err) {
		t.Fatalf("expected second parent rejection, got %v", err)
	}
	admin := models.UserRoleAdmin
	if _, err := models.UpdateUser(ctx, c.ID, &models.UpdateUserInput{Role: &admin}); !utils.IsValidationError(err) {
		t.Fatalf("expected role change rejection for a linked child, got %v", err)
	}

	// Two leaders race for the same child: the advisory lock is held until commit,
	// so exactly one edge survives.
	e := newManager("lead-e", models.UserRoleTeamLeader)
	f := newManager("rep-f", models.UserRoleSalesRep)
	var wg sync.WaitGroup
	raceErrs := make([]error, 2)
	for i, parentId := range []int{d.ID, e.ID} {
		wg.Add(1)
		go func(i int, parentId int) {
			defer wg.Done()
			_, raceErrs[i] = workflow.CreateOrgEdge(ctx, &models.NewOrgEdge{ParentId: parentId, ChildId: f.ID})
		}(i, parentId)
	}
	wg.Wait()
	succeeded := 0
	for _, err := range raceErrs {
		switch {
		case err == nil:
			succeeded++
		case !utils.IsValidationError(err):
			t.Fatalf("unexpected race error: %v", err)
		}
	}
	activeEdges, err := models.ListActiveOrgEdges(ctx)
	if err != nil {
		t.Fatalf("ListActiveOrgEdges: %v", err)
	}
	parentsOfF := 0
	for _, edge := range activeEdges {
		if edge.ChildId == f.ID {
			parentsOfF++
		}
	}
	if succeeded != 1 || parentsOfF != 1 {
		t.Fatalf("concurrent edges: %d succeeded, %d active parents", succeeded, parentsOfF)
	}

	downline, err := models.GetDownline(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetDownline: %v", err)
	}
	if len(downline) != 2 || downline[0].DescendantId != b.ID || downline[1].Depth != 2 {
		t.Fatalf("unexpected closure for A: %+v", downline)
	}

	// 2) Period with revenue for all three.
	rate := decimal.RequireFromString("0.92")
	if _, err := models.CreatePeriod(ctx, &models.NewPeriod{Id: "202405", Year: 2024, Month: 5, UsdEurRate: &rate}); err != nil {
		t.Fatalf("CreatePeriod: %v", err)
	}
	rows := []models.RevenueRowInput{
		{CreatorHandle: "@alpha", ManagerId: a.ID, EstBaseUsd: decimal.NewFromInt(8000), EstActivityUsd: decimal.NewFromInt(1000), M1: 1},
		{CreatorHandle: "beta", ManagerId: b.ID, EstBaseUsd: decimal.NewFromInt(2000)},
		{CreatorHandle: "gamma", ManagerId: c.ID, EstBaseUsd: decimal.NewFromInt(1000), EstActivityUsd: decimal.NewFromInt(500)},
	}
	batch, err := models.ImportRevenueRows(ctx, "202405", "may.xlsx", rows)
	if err != nil {
		t.Fatalf("ImportRevenueRows: %v", err)
	}
	if batch.Status != models.ImportStatusCompleted {
		t.Fatalf("import status = %s", batch.Status)
	}

	// 3) Recalculation is idempotent apart from the revision.
	first, err := workflow.CalculateAllCommissions(ctx, "202405")
	if err != nil {
		t.Fatalf("CalculateAllCommissions: %v", err)
	}
	firstRows, _ := models.GetPeriodLedger(ctx, "202405")
	second, err := workflow.CalculateAllCommissions(ctx, "202405")
	if err != nil {
		t.Fatalf("CalculateAllCommissions (again): %v", err)
	}
	secondRows, _ := models.GetPeriodLedger(ctx, "202405")
	if second.Revision != first.Revision+1 {
		t.Fatalf("revision %d -> %d", first.Revision, second.Revision)
	}
	if !first.TotalCommissionEur.Equal(second.TotalCommissionEur) || len(firstRows) != len(secondRows) {
		t.Fatalf("recalculation changed results: %s/%d vs %s/%d",
			first.TotalCommissionEur, len(firstRows), second.TotalCommissionEur, len(secondRows))
	}
	for i := range secondRows {
		if secondRows[i].Revision != second.Revision {
			t.Fatalf("row %d carries revision %d", i, secondRows[i].Revision)
		}
		if err := secondRows[i].VerifyAmounts(); err != nil {
			t.Fatalf("VerifyAmounts: %v", err)
		}
	}

	cRows, _ := models.GetLedgerRows(ctx, "202405", c.ID)
	if total := models.SumEur(cRows); !total.Equal(decimal.RequireFromString("414.00")) {
		t.Fatalf("sales rep total = %s, want 414.00", total)
	}

	// 4) One payout per manager and period.
	payout, err := workflow.RequestPayout(ctx, "202405", c.ID)
	if err != nil {
		t.Fatalf("RequestPayout: %v", err)
	}
	if !payout.AmountEur.Equal(decimal.RequireFromString("414.00")) || len(payout.Lines) != len(cRows) {
		t.Fatalf("unexpected payout %+v", payout)
	}
	if _, err := workflow.RequestPayout(ctx, "202405", c.ID); !utils.IsValidationError(err) {
		t.Fatalf("expected duplicate payout rejection, got %v", err)
	}
	if _, err := workflow.UpdatePayoutStatus(ctx, payout.ID, &models.UpdatePayoutStatusInput{Status: models.PayoutStatusPaid}); !utils.IsValidationError(err) {
		t.Fatalf("SUBMITTED -> PAID must be rejected, got %v", err)
	}
	approved, err := workflow.UpdatePayoutStatus(ctx, payout.ID, &models.UpdatePayoutStatusInput{Status: models.PayoutStatusApproved})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.ProcessedAt == nil || approved.ProcessedBy == nil {
		t.Fatalf("approval must stamp processed_at/by")
	}

	// 5) Locking blocks recalculation; unlocking allows it again.
	if _, err := models.UpdatePeriodStatus(ctx, "202405", models.PeriodStatusLocked); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := workflow.CalculateAllCommissions(ctx, "202405"); !utils.IsConfigurationError(err) {
		t.Fatalf("locked period must reject recalculation, got %v", err)
	}
	if _, err := models.UpdatePeriodStatus(ctx, "202405", models.PeriodStatusActive); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	// 6) Removing A -> B drops (A,B) and (A,C) but keeps (B,C).
	if _, err := workflow.RemoveOrgEdge(ctx, edgeAB.ID); err != nil {
		t.Fatalf("RemoveOrgEdge: %v", err)
	}
	downline, _ = models.GetDownline(ctx, a.ID)
	if len(downline) != 0 {
		t.Fatalf("A must have no downline after removal, got %+v", downline)
	}
	downline, _ = models.GetDownline(ctx, b.ID)
	if len(downline) != 1 || downline[0].DescendantId != c.ID {
		t.Fatalf("B must keep C, got %+v", downline)
	}
	if _, err := workflow.RemoveOrgEdge(ctx, edgeAB.ID); !utils.IsValidationError(err) {
		t.Fatalf("removing an inactive edge must fail, got %v", err)
	}
	history, err := models.ListOrgEdges(ctx)
	if err != nil {
		t.Fatalf("ListOrgEdges: %v", err)
	}
	closedKept := false
	for _, edge := range history {
		if edge.ID == edgeAB.ID && !edge.IsActive() {
			closedKept = true
		}
	}
	if !closedKept {
		t.Fatalf("edge history must keep the closed A->B edge")
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("billing-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := dockerRun("exec", name, "redis-cli", "ping"); err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("billing-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=billing_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent"); err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	m := regexp.MustCompile(`:(\d+)`).FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	b, err := exec.Command("docker", args...).CombinedOutput()
	return string(b), err
}
