package notion

var (
	ConvertBlock = convertBlock
	PageTitle    = pageTitle
)
