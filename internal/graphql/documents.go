package graphql

const cartFields = `
fragment CartFields on Cart {
  id
  userId
  restaurantId
  restaurant { id name address }
  items {
    menuItemId
    menuItem { id name description price image }
    quantity
    price
    name
  }
  totalAmount
  createdAt
  updatedAt
}
`

const orderFields = `
fragment OrderFields on Order {
  id
  userId
  restaurantId
  restaurant { id name address cuisineType }
  items {
    menuItemId
    menuItem { id name description price image }
    quantity
    price
    name
  }
  totalAmount
  status
  deliveryAddress
  deliveryLocation { lat lng }
  specialInstructions
  createdAt
  updatedAt
}
`

const (
	opGetCart        = "GetCart"
	opGetUserCarts   = "GetUserCarts"
	opAddToCart      = "AddToCart"
	opUpdateCartItem = "UpdateCartItem"
	opRemoveFromCart = "RemoveFromCart"
	opClearCart      = "ClearCart"
	opCreateOrder    = "CreateOrder"
	opGetOrderByID   = "GetOrderById"
	opCancelOrder    = "CancelOrder"
	opGetUserOrders  = "GetUserOrders"
	opLoginUser      = "LoginUser"
	opRegisterUser   = "RegisterUser"
	opGetMe          = "GetMe"
)

const getCartQuery = `query GetCart($restaurantId: ID!) {
  getCart(restaurantId: $restaurantId) { ...CartFields }
}` + cartFields

const getUserCartsQuery = `query GetUserCarts {
  getUserCarts { ...CartFields }
}` + cartFields

const addToCartMutation = `mutation AddToCart($restaurantId: ID!, $menuItemId: ID!, $quantity: Int) {
  addToCart(restaurantId: $restaurantId, menuItemId: $menuItemId, quantity: $quantity) { ...CartFields }
}` + cartFields

const updateCartItemMutation = `mutation UpdateCartItem($restaurantId: ID!, $menuItemId: ID!, $quantity: Int!) {
  updateCartItem(restaurantId: $restaurantId, menuItemId: $menuItemId, quantity: $quantity) { ...CartFields }
}` + cartFields

const removeFromCartMutation = `mutation RemoveFromCart($restaurantId: ID!, $menuItemId: ID!) {
  removeFromCart(restaurantId: $restaurantId, menuItemId: $menuItemId) { ...CartFields }
}` + cartFields

const clearCartMutation = `mutation ClearCart($restaurantId: ID!) {
  clearCart(restaurantId: $restaurantId)
}`

const createOrderMutation = `mutation CreateOrder($input: CreateOrderInput!) {
  createOrder(input: $input) { ...OrderFields }
}` + orderFields

const getOrderByIDQuery = `query GetOrderById($orderId: ID!) {
  getOrderById(orderId: $orderId) { ...OrderFields }
}` + orderFields

const cancelOrderMutation = `mutation CancelOrder($orderId: ID!) {
  cancelOrder(orderId: $orderId) { ...OrderFields }
}` + orderFields

const getUserOrdersQuery = `query GetUserOrders($limit: Int, $offset: Int) {
  getUserOrders(limit: $limit, offset: $offset) { ...OrderFields }
}` + orderFields

const loginUserMutation = `mutation LoginUser($input: LoginInput!) {
  loginUser(input: $input) {
    token
    user { id name email role }
  }
}`

const registerUserMutation = `mutation RegisterUser($input: RegisterInput!) {
  registerUser(input: $input) {
    token
    user { id name email role }
  }
}`

const getMeQuery = `query GetMe {
  me { id name email role }
}`
