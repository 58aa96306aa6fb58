package auth

// Permission codes checked by the console. The identity API owns the full
// catalog; these are the ones the menu and the guarded areas gate on.
const (
	PermDashboardView = "dashboard_ver"

	PermSalesView     = "ventas_ver"
	PermPurchasesView = "compras_ver"
	PermQuotesView    = "cotizaciones_ver"

	PermProductsView   = "productos_ver"
	PermBrandsView     = "marcas_ver"
	PermCategoriesView = "categorias_ver"
	PermUnitsView      = "unidades_ver"
	PermStockView      = "inventario_ver"

	PermCustomersView = "clientes_ver"
	PermSuppliersView = "proveedores_ver"

	PermReportsSalesView     = "reportes_ventas_ver"
	PermReportsPurchasesView = "reportes_compras_ver"

	PermUsersView    = "usuarios_ver"
	PermRolesView    = "roles_ver"
	PermCompanyView  = "empresa_ver"
	PermSettingsView = "configuracion_ver"
)

// BuiltinPermissions lists the codes above with a short description, for
// documentation endpoints and seeding the identity stub.
var BuiltinPermissions = []Permission{
	{Code: PermDashboardView, Description: "View the dashboard"},
	{Code: PermSalesView, Description: "View sales"},
	{Code: PermPurchasesView, Description: "View purchases"},
	{Code: PermQuotesView, Description: "View quotes"},
	{Code: PermProductsView, Description: "View products"},
	{Code: PermBrandsView, Description: "View brands"},
	{Code: PermCategoriesView, Description: "View categories"},
	{Code: PermUnitsView, Description: "View units of measure"},
	{Code: PermStockView, Description: "View stock levels"},
	{Code: PermCustomersView, Description: "View customers"},
	{Code: PermSuppliersView, Description: "View suppliers"},
	{Code: PermReportsSalesView, Description: "View sales reports"},
	{Code: PermReportsPurchasesView, Description: "View purchase reports"},
	{Code: PermUsersView, Description: "View users"},
	{Code: PermRolesView, Description: "View roles and permissions"},
	{Code: PermCompanyView, Description: "View company settings"},
	{Code: PermSettingsView, Description: "View console settings"},
}

// Permission describes one catalog entry.
type Permission struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}
