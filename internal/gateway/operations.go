package gateway

type Operation struct {
	Name  string
	Query string
}

var GetCart = Operation{Name: "GET_CART", Query: `query GET_CART {
  cart {
    contents {
      nodes {
        key
        quantity
        total
        subtotal
        product {
          node {
            id
            databaseId
            name
            ... on SimpleProduct { price }
            ... on VariableProduct { price }
          }
        }
        variation {
          node {
            id
            databaseId
            name
            price
          }
        }
      }
    }
    subtotal
    totalTax
    total
  }
}`}

var GetCurrentUser = Operation{Name: "GET_CURRENT_USER", Query: `query GET_CURRENT_USER {
  customer {
    id
    databaseId
    email
    firstName
    lastName
    username
  }
}`}

var CheckoutMutation = Operation{Name: "CHECKOUT_MUTATION", Query: `mutation CHECKOUT_MUTATION($input: CheckoutInput!) {
  checkout(input: $input) {
    result
    redirect
    order {
      id
      databaseId
      orderNumber
      orderKey
      status
      date
      total
      subtotal
      totalTax
      shippingTotal
      paymentMethod
      paymentMethodTitle
      currency
      billing { firstName lastName company address1 address2 city state postcode country email phone }
      shipping { firstName lastName company address1 address2 city state postcode country }
      lineItems {
        nodes {
          id
          productId
          quantity
          subtotal
          total
          product { node { id name image { sourceUrl altText } } }
          variation { node { id name image { sourceUrl altText } } }
        }
      }
    }
  }
}`}

var LoginUser = Operation{Name: "LOGIN_USER", Query: `mutation LOGIN_USER($username: String!, $password: String!) {
  loginWithCookies(input: {login: $username, password: $password}) {
    status
  }
}`}

var LogoutUser = Operation{Name: "LOGOUT_USER", Query: `mutation LOGOUT_USER {
  logout(input: {}) {
    status
  }
}`}

var cacheableOperations = []Operation{GetCart, GetCurrentUser}
