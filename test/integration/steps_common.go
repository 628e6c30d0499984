package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cucumber/godog"
	"github.com/lib/pq"
	"github.com/tmc/langchaingo/llms"

	"github.com/doodlesbykumbi/opsagent/pkg/agent/agenttest"
	"github.com/doodlesbykumbi/opsagent/pkg/server/middleware"
	"github.com/doodlesbykumbi/opsagent/pkg/sqltool"
)

const testJWTSecret = "integration-secret"

// StepsContext holds state shared between step definitions
type StepsContext struct {
	tc           *TestContext
	server       *ServerInstance
	serverConfig ServerConfig
	response     *http.Response
	responseBody []byte
	authToken    string
	callCount    int
	migrateErr   error
}

// NewStepsContext creates a new steps context
func NewStepsContext(tc *TestContext) *StepsContext {
	return &StepsContext{
		tc:           tc,
		serverConfig: DefaultServerConfig(),
	}
}

// RegisterSteps registers all step definitions
func (s *StepsContext) RegisterSteps(sc *godog.ScenarioContext) {
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		return ctx, s.tc.ResetData()
	})
	sc.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		if s.server != nil {
			s.server.Stop()
			s.server = nil
		}
		return ctx, nil
	})

	// Background steps
	sc.Step(`^token authentication is enabled$`, s.tokenAuthenticationIsEnabled)
	sc.Step(`^the query tool is read-only$`, s.theQueryToolIsReadOnly)
	sc.Step(`^an opsagent server is running$`, s.anOpsagentServerIsRunning)
	sc.Step(`^the following users exist:$`, s.theFollowingUsersExist)
	sc.Step(`^I have a token for "([^"]*)"$`, s.iHaveATokenFor)

	// Model script steps
	sc.Step(`^the model will run the query "([^"]*)"$`, s.theModelWillRunTheQuery)
	sc.Step(`^the model will answer "([^"]*)"$`, s.theModelWillAnswer)

	// Request steps
	sc.Step(`^I ask the agent "([^"]*)"$`, s.iAskTheAgent)
	sc.Step(`^I ask the agent "([^"]*)" in session "([^"]*)"$`, s.iAskTheAgentInSession)
	sc.Step(`^I request "(GET|DELETE)" "([^"]*)"$`, s.iRequest)

	// Response steps
	sc.Step(`^the response status should be (\d+)$`, s.theResponseStatusShouldBe)
	sc.Step(`^the agent response should be "([^"]*)"$`, s.theAgentResponseShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, s.theResponseShouldContain)
	sc.Step(`^the last tool result should contain "([^"]*)"$`, s.theLastToolResultShouldContain)

	// Database steps
	sc.Step(`^the table "([^"]*)" should have (\d+) rows?$`, s.theTableShouldHaveRows)
	sc.Step(`^session "([^"]*)" should have (\d+) stored messages?$`, s.sessionShouldHaveStoredMessages)
	sc.Step(`^an audit event "([^"]*)" should be recorded$`, s.anAuditEventShouldBeRecorded)

	// Migration steps
	sc.Step(`^the company schema already exists$`, s.theCompanySchemaAlreadyExists)
	sc.Step(`^I apply the opsagent migrations$`, s.iApplyTheOpsagentMigrations)
	sc.Step(`^the migrations should succeed$`, s.theMigrationsShouldSucceed)
	sc.Step(`^the opsagent migrations should be at version (\d+)$`, s.theOpsagentMigrationsShouldBeAtVersion)
}

// Background steps

func (s *StepsContext) tokenAuthenticationIsEnabled() error {
	s.serverConfig.JWTSecret = testJWTSecret
	return nil
}

func (s *StepsContext) theQueryToolIsReadOnly() error {
	s.serverConfig.ReadOnly = true
	return nil
}

func (s *StepsContext) anOpsagentServerIsRunning() error {
	instance, err := StartServer(s.tc, s.serverConfig)
	if err != nil {
		return err
	}
	s.server = instance
	return nil
}

func (s *StepsContext) theFollowingUsersExist(table *godog.Table) error {
	if len(table.Rows) < 2 {
		return fmt.Errorf("users table needs a header row and at least one user")
	}
	header := table.Rows[0].Cells
	for _, row := range table.Rows[1:] {
		values := make(map[string]string, len(header))
		for i, cell := range row.Cells {
			values[header[i].Value] = cell.Value
		}
		role := values["user_role"]
		if role == "" {
			role = "Employee"
		}
		if err := s.tc.DB.Exec(
			`INSERT INTO users (email, full_name, user_role) VALUES (?, ?, ?)`,
			values["email"], values["full_name"], role,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *StepsContext) iHaveATokenFor(subject string) error {
	token, err := middleware.IssueToken(testJWTSecret, subject, time.Hour)
	if err != nil {
		return err
	}
	s.authToken = token
	return nil
}

// Model script steps

func (s *StepsContext) theModelWillRunTheQuery(query string) error {
	args, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return err
	}
	s.callCount++
	s.server.Model.Push(agenttest.CallTool(fmt.Sprintf("call_%d", s.callCount), sqltool.Name, string(args)))
	return nil
}

func (s *StepsContext) theModelWillAnswer(text string) error {
	s.server.Model.Push(agenttest.Reply(text))
	return nil
}

// Request steps

func (s *StepsContext) iAskTheAgent(query string) error {
	return s.postAgent(map[string]any{"query": query})
}

func (s *StepsContext) iAskTheAgentInSession(query, session string) error {
	return s.postAgent(map[string]any{"query": query, "session_id": session})
}

func (s *StepsContext) postAgent(body map[string]any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return s.do(http.MethodPost, "/agent", bytes.NewReader(data))
}

func (s *StepsContext) iRequest(method, path string) error {
	return s.do(method, path, nil)
}

func (s *StepsContext) do(method, path string, body io.Reader) error {
	req, err := http.NewRequest(method, s.server.ServerURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	s.response, err = s.tc.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	s.responseBody, err = io.ReadAll(s.response.Body)
	_ = s.response.Body.Close()
	return err
}

// Response steps

func (s *StepsContext) theResponseStatusShouldBe(expectedStatus int) error {
	if s.response.StatusCode != expectedStatus {
		return fmt.Errorf("expected status %d, got %d: %s", expectedStatus, s.response.StatusCode, string(s.responseBody))
	}
	return nil
}

func (s *StepsContext) theAgentResponseShouldBe(expected string) error {
	var resp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(s.responseBody, &resp); err != nil {
		return fmt.Errorf("failed to parse agent response: %w", err)
	}
	if resp.Response != expected {
		return fmt.Errorf("expected response %q, got %q", expected, resp.Response)
	}
	return nil
}

func (s *StepsContext) theResponseShouldContain(expected string) error {
	if !strings.Contains(string(s.responseBody), expected) {
		return fmt.Errorf("expected body to contain %q, got %q", expected, string(s.responseBody))
	}
	return nil
}

// theLastToolResultShouldContain inspects the tool output the model was
// shown on its most recent call.
func (s *StepsContext) theLastToolResultShouldContain(expected string) error {
	calls := s.server.Model.Calls()
	for i := len(calls) - 1; i >= 0; i-- {
		msgs := calls[i]
		for j := len(msgs) - 1; j >= 0; j-- {
			for _, part := range msgs[j].Parts {
				result, ok := part.(llms.ToolCallResponse)
				if !ok {
					continue
				}
				if !strings.Contains(result.Content, expected) {
					return fmt.Errorf("expected tool result to contain %q, got %q", expected, result.Content)
				}
				return nil
			}
		}
	}
	return fmt.Errorf("the model was never shown a tool result")
}

// Database steps

func (s *StepsContext) theTableShouldHaveRows(table string, expected int) error {
	var count int64
	if err := s.tc.DB.Raw("SELECT count(*) FROM " + pq.QuoteIdentifier(table)).Scan(&count).Error; err != nil {
		return err
	}
	if count != int64(expected) {
		return fmt.Errorf("expected %d rows in %s, got %d", expected, table, count)
	}
	return nil
}

func (s *StepsContext) sessionShouldHaveStoredMessages(session string, expected int) error {
	var count int64
	if err := s.tc.DB.Raw(`SELECT count(*) FROM agent_messages WHERE session_id = ?`, session).Scan(&count).Error; err != nil {
		return err
	}
	if count != int64(expected) {
		return fmt.Errorf("expected %d messages in session %s, got %d", expected, session, count)
	}
	return nil
}

func (s *StepsContext) anAuditEventShouldBeRecorded(msgid string) error {
	var count int64
	if err := s.tc.DB.Raw(`SELECT count(*) FROM messages WHERE msgid = ?`, msgid).Scan(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("no audit event with msgid %q was recorded", msgid)
	}
	return nil
}
