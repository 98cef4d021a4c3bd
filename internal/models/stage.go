// -----------------------------------------------------------------------
// Analysis Stages - Fixed descriptors for the four-stage pipeline
// -----------------------------------------------------------------------

package models

// StageName identifies one of the fixed analysis stages.
type StageName string

const (
	StageVerification              StageName = "verification"
	StageFinancialAnalysis         StageName = "financial_analysis"
	StageInvestmentRecommendations StageName = "investment_recommendations"
	StageRiskAssessment            StageName = "risk_assessment"
)

// Stage is a stateless descriptor for one analysis stage. Descriptors are
// created once at process start and never mutated; execution state lives on
// the Job, not here.
type Stage struct {
	Name StageName

	// Role is the system instruction for the model when running this stage.
	Role string

	// Task is the instruction template for the stage. The stage runner
	// interpolates the user query, the extracted document text and prior
	// stage outputs around it.
	Task string

	// Inputs lists the prior stages whose outputs this stage consumes.
	// Verification reads only the raw document text.
	Inputs []StageName
}

// stages is the fixed, ordered pipeline definition. Order matters: each
// stage may consume the outputs of stages listed before it.
var stages = []Stage{
	{
		Name: StageVerification,
		Role: "You are a financial document verifier with an audit and compliance background. " +
			"You apply strict standards: only genuine financial documents proceed to analysis.",
		Task: "Verify the authenticity and validity of the financial document. " +
			"Confirm it contains legitimate financial statements, assess completeness " +
			"(income statement, balance sheet, cash flow), identify the reporting period " +
			"and currency, and state whether the document is suitable for the requested analysis.",
		Inputs: nil,
	},
	{
		Name: StageFinancialAnalysis,
		Role: "You are a senior financial analyst. Your analysis is methodical and every claim " +
			"is backed by specific data points from the document.",
		Task: "Analyze the financial document. Extract key metrics (revenue, expenses, " +
			"profitability, liquidity and solvency ratios), analyze trends over time, " +
			"identify significant changes in financial position, and summarise strengths " +
			"and weaknesses with supporting citations.",
		Inputs: []StageName{StageVerification},
	},
	{
		Name: StageInvestmentRecommendations,
		Role: "You are a certified investment strategy advisor. Recommendations are " +
			"evidence-based and grounded in fundamentals, with risks clearly disclosed.",
		Task: "Develop investment recommendations from the document and the prior financial " +
			"analysis. Evaluate financial health, growth prospects and earnings quality, " +
			"assess valuation, and give specific buy/hold/sell guidance with rationale " +
			"and clear risk disclaimers.",
		Inputs: []StageName{StageVerification, StageFinancialAnalysis},
	},
	{
		Name: StageRiskAssessment,
		Role: "You are an enterprise risk management specialist. Assessments are realistic, " +
			"actionable and grounded in the data.",
		Task: "Conduct a risk assessment based on the document and the prior analysis. " +
			"Identify and prioritise liquidity, credit, solvency, operational, market and " +
			"regulatory risks, and propose mitigation strategies and monitoring metrics.",
		Inputs: []StageName{StageVerification, StageFinancialAnalysis, StageInvestmentRecommendations},
	},
}

// Stages returns the fixed ordered stage list. Callers must not mutate the
// returned slice.
func Stages() []Stage {
	return stages
}

// StageNames returns the stage names in pipeline order.
func StageNames() []StageName {
	names := make([]StageName, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	return names
}

// StageByName returns the descriptor for a stage name.
func StageByName(name StageName) (Stage, bool) {
	for _, s := range stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// StageInput is the input handed to the stage runner for one stage: the
// truncated document text, the optional user query, and the accumulated
// outputs of all prior stages in this run.
type StageInput struct {
	DocumentText string
	Query        string
	Prior        map[StageName]StageOutput
}

// StageOutput is the structured result of one stage. The orchestrator
// treats it opaquely; the stage runner is responsible for parsing and
// validating it against this shape.
type StageOutput struct {
	Summary string `json:"summary" validate:"required"`
	Report  string `json:"report" validate:"required"`
}
