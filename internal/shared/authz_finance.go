package shared

// Finance permissions form a closed set with a single canonical encoding.
// The core never evaluates them; the transport layer resolves an actor's
// set once and gates calls before invoking core operations.
const (
	PermPeriodsManage = "finance.periods.manage"

	PermGLView        = "finance.gl.view"
	PermGLPost        = "finance.gl.post"
	PermGLAccountEdit = "finance.gl.accounts.edit"

	PermSubledgerView     = "finance.subledger.view"
	PermSubledgerEdit     = "finance.subledger.edit"
	PermSubledgerPost     = "finance.subledger.post"
	PermSubledgerAllocate = "finance.subledger.allocate"

	PermInventoryView = "finance.inventory.view"
	PermInventoryPost = "finance.inventory.post"

	PermReportsView = "finance.reports.view"
)

// FinanceScopes lists every finance permission.
func FinanceScopes() []string {
	return []string{
		PermPeriodsManage,
		PermGLView,
		PermGLPost,
		PermGLAccountEdit,
		PermSubledgerView,
		PermSubledgerEdit,
		PermSubledgerPost,
		PermSubledgerAllocate,
		PermInventoryView,
		PermInventoryPost,
		PermReportsView,
	}
}
