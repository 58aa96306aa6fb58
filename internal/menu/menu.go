// Package menu derives the sidebar from a user profile.
package menu

import "gestio.app/internal/auth"

// Node is a sidebar entry. A node either has a Route or has Children.
type Node struct {
	Title    string `json:"title"`
	Route    string `json:"route,omitempty"`
	Icon     string `json:"icon"`
	Children []Node `json:"children,omitempty"`
}

// Group is a titled section of the sidebar.
type Group struct {
	Title string `json:"title"`
	Items []Node `json:"items"`
}

type entry struct {
	node     Node
	perm     string
	children []entry
}

type section struct {
	title   string
	entries []entry
}

var (
	dashboardItem = Node{Title: "Dashboard", Route: "/dashboard", Icon: "gauge"}
	welcomeItem   = Node{Title: "Bienvenida", Route: "/bienvenida", Icon: "home"}

	superadminGroup = Group{Title: "Superadmin", Items: []Node{
		{Title: "Empresas", Route: "/superadmin/empresas", Icon: "building"},
		{Title: "Usuarios globales", Route: "/superadmin/usuarios", Icon: "users-cog"},
		{Title: "Permisos", Route: "/superadmin/permisos", Icon: "key"},
	}}
)

// catalog lists the gated sections in display order.
var catalog = []section{
	{title: "Operaciones", entries: []entry{
		{node: Node{Title: "Ventas", Route: "/ventas", Icon: "cash-register"}, perm: auth.PermSalesView},
		{node: Node{Title: "Compras", Route: "/compras", Icon: "cart"}, perm: auth.PermPurchasesView},
		{node: Node{Title: "Cotizaciones", Route: "/cotizaciones", Icon: "file-invoice"}, perm: auth.PermQuotesView},
	}},
	{title: "Catálogo", entries: []entry{
		{node: Node{Title: "Productos", Icon: "boxes"}, perm: auth.PermProductsView, children: []entry{
			{node: Node{Title: "Productos", Route: "/productos", Icon: "box"}, perm: auth.PermProductsView},
			{node: Node{Title: "Marcas", Route: "/marcas", Icon: "tag"}, perm: auth.PermBrandsView},
			{node: Node{Title: "Categorías", Route: "/categorias", Icon: "sitemap"}, perm: auth.PermCategoriesView},
		}},
		{node: Node{Title: "Unidades", Route: "/unidades", Icon: "ruler"}, perm: auth.PermUnitsView},
		{node: Node{Title: "Inventario", Route: "/inventario", Icon: "warehouse"}, perm: auth.PermStockView},
	}},
	{title: "Contactos", entries: []entry{
		{node: Node{Title: "Clientes", Route: "/clientes", Icon: "user"}, perm: auth.PermCustomersView},
		{node: Node{Title: "Proveedores", Route: "/proveedores", Icon: "truck"}, perm: auth.PermSuppliersView},
	}},
	{title: "Reportes", entries: []entry{
		{node: Node{Title: "Reporte de ventas", Route: "/reportes/ventas", Icon: "chart-line"}, perm: auth.PermReportsSalesView},
		{node: Node{Title: "Reporte de compras", Route: "/reportes/compras", Icon: "chart-bar"}, perm: auth.PermReportsPurchasesView},
	}},
	{title: "Administración", entries: []entry{
		{node: Node{Title: "Usuarios", Route: "/usuarios", Icon: "users"}, perm: auth.PermUsersView},
		{node: Node{Title: "Roles", Route: "/roles", Icon: "shield"}, perm: auth.PermRolesView},
		{node: Node{Title: "Empresa", Route: "/empresa", Icon: "building"}, perm: auth.PermCompanyView},
		{node: Node{Title: "Configuración", Route: "/configuracion", Icon: "cog"}, perm: auth.PermSettingsView},
	}},
}

// Build returns the sidebar for profile. It never fails and does no I/O; a
// nil profile yields only the welcome item.
func Build(profile *auth.UserProfile) []Group {
	var groups []Group
	if profile.IsSuperadmin() {
		groups = append(groups, cloneGroup(superadminGroup))
	}

	home := welcomeItem
	if auth.HasPermission(profile, auth.PermDashboardView) {
		home = dashboardItem
	}
	groups = append(groups, Group{Title: "Inicio", Items: []Node{home}})

	for _, sec := range catalog {
		items := filter(profile, sec.entries)
		if len(items) == 0 {
			continue
		}
		groups = append(groups, Group{Title: sec.title, Items: items})
	}
	return groups
}

// Routes lists every route reachable from the sidebar for profile.
func Routes(profile *auth.UserProfile) []string {
	var out []string
	var walk func([]Node)
	walk = func(nodes []Node) {
		for _, n := range nodes {
			if n.Route != "" {
				out = append(out, n.Route)
			}
			walk(n.Children)
		}
	}
	for _, g := range Build(profile) {
		walk(g.Items)
	}
	return out
}

func filter(profile *auth.UserProfile, entries []entry) []Node {
	var out []Node
	for _, e := range entries {
		if !auth.HasPermission(profile, e.perm) {
			continue
		}
		n := e.node
		if len(e.children) > 0 {
			n.Children = filter(profile, e.children)
			if len(n.Children) == 0 {
				continue
			}
		}
		out = append(out, n)
	}
	return out
}

func cloneGroup(g Group) Group {
	g.Items = append([]Node(nil), g.Items...)
	return g
}
