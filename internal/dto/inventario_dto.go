package dto

// AjustarStockRequest is a manual correction. Cantidad is signed: positive
// adds units, negative removes them.
type AjustarStockRequest struct {
	Cantidad int    `json:"cantidad" validate:"required,min=-1000000,max=1000000"`
	Motivo   string `json:"motivo"   validate:"required,min=3,max=255"`
	// Forzar lets the result go below zero when the server allows it.
	Forzar bool `json:"forzar"`
}

type AjusteStockResponse struct {
	ProductoID    string `json:"producto_id"`
	StockAnterior int    `json:"stock_anterior"`
	StockNuevo    int    `json:"stock_nuevo"`
}

// MovimientoStockFilter is bound from the query string of GET /v1/inventario/movimientos.
type MovimientoStockFilter struct {
	ProductoID string `form:"producto_id" validate:"omitempty,uuid"`
	Tipo       string `form:"tipo"        validate:"omitempty,oneof=venta anulacion_venta ajuste_manual"`
	Page       int    `form:"page,default=1"    validate:"min=1"`
	Limit      int    `form:"limit,default=100" validate:"min=1,max=500"`
}

type MovimientoStockResponse struct {
	ID            string  `json:"id"`
	ProductoID    string  `json:"producto_id"`
	Tipo          string  `json:"tipo"`
	Cantidad      int     `json:"cantidad"`
	StockAnterior int     `json:"stock_anterior"`
	StockNuevo    int     `json:"stock_nuevo"`
	Motivo        string  `json:"motivo"`
	ReferenciaID  *string `json:"referencia_id"`
	UsuarioID     *string `json:"usuario_id"`
	CreatedAt     string  `json:"created_at"`
}

type MovimientoStockListResponse struct {
	Data  []MovimientoStockResponse `json:"data"`
	Total int64                     `json:"total"`
	Page  int                       `json:"page"`
	Limit int                       `json:"limit"`
}

type AlertaStockResponse struct {
	ProductoID  string `json:"producto_id"`
	Descripcion string `json:"descripcion"`
	StockActual int    `json:"stock_actual"`
	StockMinimo int    `json:"stock_minimo"`
	Deficit     int    `json:"deficit"`
}
