package automation

import "github.com/ronalddlopez/housecat/internal/domain"

func pipelinePlan(n int) domain.TestPlan {
	plan := domain.TestPlan{TotalSteps: n}
	for i := 1; i <= n; i++ {
		plan.Steps = append(plan.Steps, domain.TestStep{StepNumber: i})
	}
	return plan
}
